package cmd

import (
	"fmt"
	"strconv"
)

func parseWeights(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for name, v := range raw {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("balance weight %s: %w", name, err)
		}
		out[name] = w
	}
	return out, nil
}
