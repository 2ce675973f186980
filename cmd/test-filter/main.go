// cmd/test-filter runs one image through a filter without the batch
// coordinator, for checking filters and codecs by hand.
//
// Usage:
//
//	./test-filter -input photo.jpg
//	./test-filter -input photo.jpg -output out.png -filter invert
//	./test-filter -input photo.jpg -rows 0:120   # filter only the top band
//	./test-filter -input photo.jpg -probe        # show metadata only
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-grayscaler/internal/discover"
	"github.com/tendant/simple-grayscaler/internal/img"
)

func main() {
	input := flag.String("input", "", "Input image path (required)")
	output := flag.String("output", "", "Output path (default: gris_<input> next to the input)")
	filterName := flag.String("filter", "grayscale", "Filter to apply: "+strings.Join(img.FilterNames(), ", "))
	rowsFlag := flag.String("rows", "", "Row band start:end to filter (default: whole image)")
	probe := flag.Bool("probe", false, "Show image metadata only (don't filter)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	codec := img.NewCodec()
	src, err := codec.Decode(bytes.NewReader(data))
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *probe {
		printImageInfo(*input, src, int64(len(data)))
		return
	}

	filter, err := img.GetFilter(*filterName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	rows := img.FullHeight(src)
	if *rowsFlag != "" {
		if rows, err = parseRows(*rowsFlag); err != nil {
			log.Fatalf("invalid -rows: %v", err)
		}
	}

	if *output == "" {
		*output = filepath.Join(filepath.Dir(*input), discover.OutputName(discover.OutputPrefix, *input))
	}

	if *verbose {
		fmt.Printf("Input:  %s\n", *input)
		fmt.Printf("Filter: %s rows %d..%d\n", filter.Name(), rows.Start, rows.End)
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := codec.Encode(&buf, filter.Apply(src, rows)); err != nil {
		log.Fatalf("%v", err)
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0o644); err != nil {
		log.Fatalf("write output: %v", err)
	}
	elapsed := time.Since(start)

	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Output: %s\n", *output)
	fmt.Printf("Size:   %s\n", formatBytes(int64(buf.Len())))
	fmt.Printf("Time:   %v\n", elapsed.Round(time.Millisecond))
}

// parseRows reads a "start:end" half-open row range.
func parseRows(v string) (img.Rows, error) {
	startStr, endStr, ok := strings.Cut(v, ":")
	if !ok {
		return img.Rows{}, fmt.Errorf("expected start:end, got %q", v)
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return img.Rows{}, fmt.Errorf("start: %w", err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return img.Rows{}, fmt.Errorf("end: %w", err)
	}
	if start < 0 || end < start {
		return img.Rows{}, fmt.Errorf("range %d:%d is empty or negative", start, end)
	}
	return img.Rows{Start: start, End: end}, nil
}

func printImageInfo(path string, src image.Image, size int64) {
	b := src.Bounds()
	fmt.Printf("File:       %s\n", path)
	fmt.Printf("Dimensions: %dx%d pixels\n", b.Dx(), b.Dy())
	fmt.Printf("File Size:  %s\n", formatBytes(size))
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
