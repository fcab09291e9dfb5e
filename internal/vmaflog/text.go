// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaflog

import (
	"bufio"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

type xmlAttrs struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

type xmlMetric struct {
	Name         string `xml:"name,attr"`
	Min          string `xml:"min,attr"`
	Max          string `xml:"max,attr"`
	Mean         string `xml:"mean,attr"`
	HarmonicMean string `xml:"harmonic_mean,attr"`
}

type xmlLog struct {
	XMLName   xml.Name    `xml:"VMAF"`
	Version   string      `xml:"version,attr"`
	FYI       xmlAttrs    `xml:"fyi"`
	Frames    []xmlAttrs  `xml:"frames>frame"`
	Pooled    []xmlMetric `xml:"pooled_metrics>metric"`
	Aggregate xmlAttrs    `xml:"aggregate_metrics"`
}

func encodeXML(w io.Writer, l *Log) error {
	x := xmlLog{
		Version: l.Version,
		FYI:     xmlAttrs{Attrs: []xml.Attr{{Name: xml.Name{Local: "fps"}, Value: strconv.FormatFloat(l.FPS, 'f', 2, 64)}}},
	}
	names := l.MetricNames()
	for _, f := range l.Frames {
		attrs := []xml.Attr{{Name: xml.Name{Local: "frameNum"}, Value: strconv.Itoa(f.Num)}}
		for _, name := range names {
			if v, ok := f.Metrics[name]; ok {
				attrs = append(attrs, xml.Attr{Name: xml.Name{Local: name}, Value: formatFloat(v)})
			}
		}
		x.Frames = append(x.Frames, xmlAttrs{Attrs: attrs})
	}
	for _, name := range sortedKeys(l.Pooled) {
		p := l.Pooled[name]
		x.Pooled = append(x.Pooled, xmlMetric{
			Name:         name,
			Min:          formatFloat(p.Min),
			Max:          formatFloat(p.Max),
			Mean:         formatFloat(p.Mean),
			HarmonicMean: formatFloat(p.HarmonicMean),
		})
	}
	for _, name := range sortedKeys(l.Aggregate) {
		x.Aggregate.Attrs = append(x.Aggregate.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: formatFloat(l.Aggregate[name])})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(x); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func encodeCSV(w io.Writer, l *Log) error {
	names := l.MetricNames()
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Frame"}, names...)); err != nil {
		return err
	}
	row := make([]string, len(names)+1)
	for _, f := range l.Frames {
		row[0] = strconv.Itoa(f.Num)
		for i, name := range names {
			row[i+1] = ""
			if v, ok := f.Metrics[name]; ok {
				row[i+1] = formatFloat(v)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// encodeSUB writes MicroDVD subtitles, one line per frame.
func encodeSUB(w io.Writer, l *Log) error {
	bw := bufio.NewWriter(w)
	names := l.MetricNames()
	for _, f := range l.Frames {
		fmt.Fprintf(bw, "{%d}{%d}frame: %d|", f.Num, f.Num+1, f.Num)
		for _, name := range names {
			if v, ok := f.Metrics[name]; ok {
				fmt.Fprintf(bw, "%s: %s|", name, formatFloat(v))
			}
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}
