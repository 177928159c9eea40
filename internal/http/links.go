package http

import (
	"strings"
)

// PageLinks holds the pagination cursors of a response. The URLs are opaque
// and only ever fetched verbatim.
type PageLinks struct {
	Next string
	Prev string
}

// ParseLinkHeader extracts rel="next" and rel="prev" targets from an RFC 8288
// Link header. Malformed entries are skipped, so an unparseable header yields
// empty links.
func ParseLinkHeader(header string) PageLinks {
	var links PageLinks

	for _, entry := range splitLinks(header) {
		target, rels, ok := parseLink(entry)
		if !ok {
			continue
		}

		for _, rel := range rels {
			switch rel {
			case "next":
				if links.Next == "" {
					links.Next = target
				}
			case "prev", "previous":
				if links.Prev == "" {
					links.Prev = target
				}
			}
		}
	}

	return links
}

// splitLinks splits on commas outside <...>.
func splitLinks(header string) []string {
	var (
		entries []string
		inURL   bool
		start   int
	)

	for i, r := range header {
		switch r {
		case '<':
			inURL = true
		case '>':
			inURL = false
		case ',':
			if !inURL {
				entries = append(entries, header[start:i])
				start = i + 1
			}
		}
	}

	return append(entries, header[start:])
}

func parseLink(entry string) (string, []string, bool) {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "<") {
		return "", nil, false
	}

	end := strings.IndexByte(entry, '>')
	if end < 0 {
		return "", nil, false
	}

	target := strings.TrimSpace(entry[1:end])
	if target == "" {
		return "", nil, false
	}

	var rels []string

	for _, param := range strings.Split(entry[end+1:], ";") {
		name, value, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "rel") {
			continue
		}

		value = strings.Trim(strings.TrimSpace(value), `"`)
		rels = append(rels, strings.Fields(strings.ToLower(value))...)
	}

	return target, rels, len(rels) > 0
}
