package leadstore

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"leadform-bot/internal/models"
)

// Delimiter matches the list separator of Russian-locale Excel.
const Delimiter = ';'

// Columns is the fixed on-disk column order.
var Columns = []string{
	"id",
	"fio",
	"email",
	"gender",
	"status",
	"created",
	"user_id",
	"username",
	"topic",
	"details",
}

var bom = []byte{0xEF, 0xBB, 0xBF}

func encode(w io.Writer, leads []models.Lead) error {
	if _, err := w.Write(bom); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, l := range leads {
		if err := cw.Write(toRecord(l)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decode(r io.Reader) ([]models.Lead, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}

	cr := csv.NewReader(br)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = len(Columns)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []models.Lead{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptStore, err)
	}
	for i, col := range Columns {
		if header[i] != col {
			return nil, fmt.Errorf("%w: header column %d is %q, want %q", ErrCorruptStore, i+1, header[i], col)
		}
	}

	leads := make([]models.Lead, 0)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}

		line, _ := cr.FieldPos(0)
		lead, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptStore, line, err)
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func toRecord(l models.Lead) []string {
	created := ""
	if !l.Created.IsZero() {
		created = l.Created.Format(models.CreatedLayout)
	}
	return []string{
		strconv.FormatInt(l.ID, 10),
		l.FIO,
		l.Email,
		l.Gender,
		string(l.Status),
		created,
		strconv.FormatInt(l.UserID, 10),
		l.Username,
		l.Topic,
		l.Details,
	}
}

func fromRecord(rec []string) (models.Lead, error) {
	id, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil || id <= 0 {
		return models.Lead{}, fmt.Errorf("bad id %q", rec[0])
	}

	status := models.LeadStatus(rec[4])
	if !status.Valid() {
		return models.Lead{}, fmt.Errorf("bad status %q for id %d", rec[4], id)
	}

	var created time.Time
	if rec[5] != "" {
		created, err = time.ParseInLocation(models.CreatedLayout, rec[5], time.Local)
		if err != nil {
			return models.Lead{}, fmt.Errorf("bad created %q for id %d", rec[5], id)
		}
	}

	var userID int64
	if rec[6] != "" {
		userID, err = strconv.ParseInt(rec[6], 10, 64)
		if err != nil {
			return models.Lead{}, fmt.Errorf("bad user_id %q for id %d", rec[6], id)
		}
	}

	return models.Lead{
		ID:       id,
		FIO:      rec[1],
		Email:    rec[2],
		Gender:   rec[3],
		Status:   status,
		Created:  created,
		UserID:   userID,
		Username: rec[7],
		Topic:    rec[8],
		Details:  rec[9],
	}, nil
}
