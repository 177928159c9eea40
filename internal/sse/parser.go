// Package sse parses text/event-stream bodies as served by the Mastodon
// streaming server.
//
// A Mastodon event looks like:
//
//	event: update
//	data: {"id":"1", ...}
//
// Lines starting with ':' are heartbeats and are ignored.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxLineSize bounds a single line; status payloads can be large.
const maxLineSize = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	// Type is the "event:" field, "message" when absent.
	Type string
	Data string
	ID   string
}

// Parser reads events from an io.Reader.
type Parser struct {
	scanner *bufio.Scanner
	retry   time.Duration
	current struct {
		eventType string
		id        string
		dataLines []string
	}
}

// NewParser creates a new SSE parser from an io.Reader.
func NewParser(r io.Reader) *Parser {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &Parser{scanner: scanner}
}

// Retry returns the last "retry:" hint sent by the server, or zero.
func (p *Parser) Retry() time.Duration {
	return p.retry
}

// Next returns the next event. It returns io.EOF when the stream ends.
func (p *Parser) Next() (Event, error) {
	for p.scanner.Scan() {
		line := strings.TrimSuffix(p.scanner.Text(), "\r")

		if line == "" {
			if event, ok := p.flush(); ok {
				return event, nil
			}

			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			p.current.eventType = value
		case "data":
			p.current.dataLines = append(p.current.dataLines, value)
		case "id":
			p.current.id = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				p.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	err := p.scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) {
		return Event{}, err
	}

	if event, ok := p.flush(); ok {
		return event, nil
	}

	return Event{}, io.EOF
}

func (p *Parser) flush() (Event, bool) {
	defer func() {
		p.current.eventType = ""
		p.current.dataLines = nil
	}()

	if len(p.current.dataLines) == 0 {
		return Event{}, false
	}

	eventType := p.current.eventType
	if eventType == "" {
		eventType = "message"
	}

	return Event{
		Type: eventType,
		Data: strings.Join(p.current.dataLines, "\n"),
		ID:   p.current.id,
	}, true
}
