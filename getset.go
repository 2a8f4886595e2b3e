package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/pkg/errors"
)

// printDefaults writes the default parameter frame as JSON.
func printDefaults(w io.Writer) error {
	asJson, err := json.MarshalIndent(DefaultFrame(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal defaults to JSON")
	}
	_, err = fmt.Fprintln(w, string(asJson))
	return err
}

// readUpdates decodes a JSON object of parameter name to value. The result
// is in channel order; unknown names are an error.
func readUpdates(r io.Reader) ([]paramValue, error) {
	asJson, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read parameters JSON")
	}

	var raw map[string]float64
	if err := json.Unmarshal(asJson, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal parameters JSON")
	}
	for name := range raw {
		if _, err := ParamByName(name); err != nil {
			return nil, err
		}
	}

	var updates []paramValue
	for _, p := range AllParams() {
		if v, ok := raw[p.String()]; ok {
			updates = append(updates, paramValue{Name: p.String(), Value: v})
		} else if v, ok := raw[p.Address()]; ok {
			updates = append(updates, paramValue{Name: p.String(), Value: v})
		}
	}
	return updates, nil
}

// sendUpdates emits each update on its control address.
func sendUpdates(s *Sender, updates []paramValue) error {
	for _, u := range updates {
		p, err := ParamByName(u.Name)
		if err != nil {
			return err
		}
		if err := s.Send(p, u.Value); err != nil {
			return err
		}
		log.Printf("Sent %s %g\n", p.Address(), u.Value)
	}
	return nil
}
