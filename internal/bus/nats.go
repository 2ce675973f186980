// internal/bus/nats.go
package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tendant/simple-grayscaler/pkg/schema"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("simple-grayscaler"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

// Close flushes pending publications and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// JSONPublisher is satisfied by *Client.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// Publisher forwards run events to NATS: task events on "<subject>.task" and
// the run summary on subject. Publish failures are logged and never affect
// the run.
type Publisher struct {
	pub     JSONPublisher
	subject string
	logger  *slog.Logger
}

func NewPublisher(pub JSONPublisher, subject string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{pub: pub, subject: subject, logger: logger}
}

func (p *Publisher) TaskFinished(ev schema.TaskEvent) {
	subject := p.subject + ".task"
	if err := p.pub.PublishJSON(subject, ev); err != nil {
		p.logger.Error("publish task event failed", "subject", subject, "task_id", ev.TaskID, "err", err)
	}
}

func (p *Publisher) RunFinished(sum schema.RunSummary) {
	if err := p.pub.PublishJSON(p.subject, sum); err != nil {
		p.logger.Error("publish run summary failed", "subject", p.subject, "run_id", sum.RunID, "err", err)
	}
}
