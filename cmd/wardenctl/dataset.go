// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tomtom215/warden/internal/features"
	"github.com/tomtom215/warden/internal/training"
)

const (
	principalColumn = "principal"
	labelColumn     = "anomaly"
)

var errMissingColumn = errors.New("missing feature column")

// dataset is a CSV corpus. labels is nil when the file has no anomaly column.
type dataset struct {
	principals []string
	vectors    [][]float64
	labels     []bool
}

func header() []string {
	h := make([]string, 0, features.Count+2)
	h = append(h, principalColumn)
	h = append(h, features.NameList()...)
	return append(h, labelColumn)
}

func writeSamples(w io.Writer, samples []training.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header()); err != nil {
		return err
	}
	row := make([]string, features.Count+2)
	for _, s := range samples {
		row[0] = s.Principal
		for i, v := range s.Values {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[len(row)-1] = strconv.FormatBool(s.Anomaly)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// readSamples parses a corpus. Feature columns are matched by name so their
// order in the file does not matter.
func readSamples(r io.Reader) (*dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(head))
	for i, name := range head {
		index[name] = i
	}

	cols := make([]int, features.Count)
	for i, name := range features.NameList() {
		c, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errMissingColumn, name)
		}
		cols[i] = c
	}
	principalCol, hasPrincipal := index[principalColumn]
	labelCol, hasLabel := index[labelColumn]

	ds := &dataset{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != len(head) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(head))
		}

		values := make([]float64, features.Count)
		for i, c := range cols {
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, head[c], err)
			}
			values[i] = v
		}
		ds.vectors = append(ds.vectors, values)

		principal := strconv.Itoa(line - 1)
		if hasPrincipal {
			principal = rec[principalCol]
		}
		ds.principals = append(ds.principals, principal)

		if hasLabel {
			label, err := strconv.ParseBool(rec[labelCol])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, labelColumn, err)
			}
			ds.labels = append(ds.labels, label)
		}
	}
	return ds, nil
}

func readSamplesFile(path string) (*dataset, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readSamples(f)
}

// normal returns the rows not labeled anomalous.
func (d *dataset) normal() [][]float64 {
	if d.labels == nil {
		return d.vectors
	}
	out := make([][]float64, 0, len(d.vectors))
	for i, v := range d.vectors {
		if !d.labels[i] {
			out = append(out, v)
		}
	}
	return out
}
