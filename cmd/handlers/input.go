package handlers

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"safesight/internal/takeaway"
)

// readInput decodes a YAML or JSON file into v. A path of "-" reads stdin.
func readInput(path string, v any) error {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return fmt.Errorf("--input is required")
	case "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read input %s: %w", path, err)
	}
	return decodeInput(data, v)
}

func decodeInput(data []byte, v any) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

// BatchFile lists subjects to generate in one run
type BatchFile struct {
	Concurrency int                      `yaml:"concurrency"`
	Listings    []takeaway.ListingInput  `yaml:"listings"`
	Locations   []takeaway.LocationInput `yaml:"locations"`
	Videos      []takeaway.VideoInput    `yaml:"videos"`
}

// Requests flattens the file in listing, location, video order
func (b BatchFile) Requests() []takeaway.Request {
	reqs := make([]takeaway.Request, 0, len(b.Listings)+len(b.Locations)+len(b.Videos))
	for _, in := range b.Listings {
		reqs = append(reqs, in.Request())
	}
	for _, in := range b.Locations {
		reqs = append(reqs, in.Request())
	}
	for _, in := range b.Videos {
		reqs = append(reqs, in.Request())
	}
	return reqs
}
