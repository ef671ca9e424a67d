// Package main resamples a candle CSV to a coarser timeframe, e.g. 5m
// input into 15m bars.
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"io"
	"log"
	"os"
	"strconv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"backtester/services/candles"
)

func main() {
	in := flag.String("in", "", "Input CSV (timestamp_ms,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	src := flag.String("src", "5m", "Source timeframe (e.g. 5m)")
	dst := flag.String("dst", "15m", "Target timeframe (e.g. 15m)")
	flag.Parse()

	if *in == "" || *out == "" {
		log.Fatal("-in and -out are required")
	}
	srcMs, err := candles.TimeframeMs(*src)
	if err != nil {
		log.Fatalf("bad -src: %v", err)
	}
	dstMs, err := candles.TimeframeMs(*dst)
	if err != nil {
		log.Fatalf("bad -dst: %v", err)
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var reader io.Reader = br
	// Exchange dumps are sometimes UTF-16; decode when the BOM says so.
	if b, _ := br.Peek(2); len(b) >= 2 &&
		((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			log.Fatal(err)
		}
		endian := unicode.LittleEndian
		if b[0] == 0xFE {
			endian = unicode.BigEndian
		}
		reader = transform.NewReader(f, unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder())
	}

	cs, err := candles.ParseCSV(reader)
	if err != nil {
		log.Fatalf("parse input: %v", err)
	}
	resampled, err := candles.Resample(cs, srcMs, dstMs)
	if err != nil {
		log.Fatal(err)
	}

	outF, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer outF.Close()

	w := csv.NewWriter(outF)
	for _, c := range resampled {
		record := []string{
			strconv.FormatInt(c.Timestamp, 10),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume.String(),
		}
		if err := w.Write(record); err != nil {
			log.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatal(err)
	}
	log.Printf("resampled %d bars into %d", len(cs), len(resampled))
}
