// Package bookmark manages saved wallet addresses and their CSV
// import/export format.
package bookmark

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// csvHeader is the fixed header row of the bookmark CSV format.
var csvHeader = []string{"Wallet Address", "Label", "Notes", "Is Favorite"}

// Bookmark is one saved wallet address.
type Bookmark struct {
	Address    string `json:"address"`
	Label      string `json:"label"`
	Notes      string `json:"notes"`
	IsFavorite bool   `json:"isFavorite"`
}

// ToCSV serializes bookmarks with the fixed header row. Labels and notes are
// quoted and escaped per standard CSV rules; the favorite flag renders as
// literal true/false.
func ToCSV(bookmarks []Bookmark) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("writing CSV header: %w", err)
	}
	for _, b := range bookmarks {
		record := []string{b.Address, b.Label, b.Notes, strconv.FormatBool(b.IsFavorite)}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("writing CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FromCSV parses bookmark CSV. Rows whose address fails validation are
// silently dropped; a malformed file (bad quoting, wrong column count)
// is an error.
func FromCSV(data string) ([]Bookmark, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}

	bookmarks := make([]Bookmark, 0, len(records))
	for i, record := range records {
		if i == 0 && strings.EqualFold(record[0], csvHeader[0]) {
			continue
		}
		address := strings.TrimSpace(record[0])
		if !addressPattern.MatchString(address) {
			continue
		}
		bookmarks = append(bookmarks, Bookmark{
			Address:    address,
			Label:      record[1],
			Notes:      record[2],
			IsFavorite: strings.EqualFold(strings.TrimSpace(record[3]), "true"),
		})
	}
	return bookmarks, nil
}
