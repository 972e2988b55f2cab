package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/connorpauley-png/content-command-sub001/internal/fingerprint"
)

func newMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "match <photos.json|->",
		Short: "Pair before and after photos by scene fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			photos, err := readPhotos(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPairs(fingerprint.Match(photos)))
			return nil
		},
	}
}

// readPhotos accepts either a bare array or an object with a "photos" array.
func readPhotos(r io.Reader) ([]fingerprint.Photo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var photos []fingerprint.Photo
	if err := json.Unmarshal(data, &photos); err == nil {
		return photos, nil
	}
	var wrapped struct {
		Photos []fingerprint.Photo `json:"photos"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	return wrapped.Photos, nil
}

func renderPairs(pairs []fingerprint.Pair) string {
	if len(pairs) == 0 {
		return "No before/after pairs found"
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{
			p.Before.ID,
			p.After.ID,
			strconv.FormatFloat(p.Similarity, 'f', 2, 64),
			strconv.FormatFloat(p.Score, 'f', 2, 64),
			fingerprint.Caption(p),
		})
	}
	return renderTable(
		[]string{"Before", "After", "Similarity", "Score", "Caption"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
