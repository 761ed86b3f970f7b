// Package exports renders votings and their votes as downloadable files,
// either inline or through the worker and S3.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	domainerrors "github.com/surapp/backend/internal/domain/errors"
	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
	"github.com/surapp/backend/internal/votings"
	"github.com/surapp/backend/pkg/queue"
)

// VotesHeader is the first row of a votes export.
var VotesHeader = []string{"User", "Question ID", "Question", "Choice ID", "Choice"}

// VotesSheet names the worksheet of a votes workbook.
const VotesSheet = "Votes"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// File is a rendered export.
type File struct {
	Name        string
	ContentType string
	Ext         string
	Body        []byte
}

// Renderer loads a voting from the store and renders it.
type Renderer struct {
	store store.Store
}

// NewRenderer creates an export renderer.
func NewRenderer(st store.Store) *Renderer {
	return &Renderer{store: st}
}

// Exists returns ErrNotFound if votingID is unknown.
func (r *Renderer) Exists(ctx context.Context, votingID int64) error {
	err := r.store.View(ctx, func(rd store.Reader) error {
		_, err := rd.GetVoting(ctx, votingID)
		return err
	})
	return domainerrors.Storage("export lookup", err)
}

// Render produces the export of votingID in format: queue.FormatJSON for the
// voting tree, queue.FormatXLSX or queue.FormatCSV for its votes. An unknown
// voting yields ErrNotFound.
func (r *Renderer) Render(ctx context.Context, votingID int64, format string) (*File, error) {
	switch format {
	case queue.FormatJSON:
		var tree *models.Tree
		err := r.store.View(ctx, func(rd store.Reader) error {
			var err error
			tree, err = rd.LoadTree(ctx, votingID)
			return err
		})
		if err != nil {
			return nil, domainerrors.Storage("export voting", err)
		}
		body, err := RenderJSON(tree)
		if err != nil {
			return nil, err
		}
		return &File{
			Name:        fmt.Sprintf("voting_%d.json", votingID),
			ContentType: "application/json",
			Ext:         queue.FormatJSON,
			Body:        body,
		}, nil
	case queue.FormatXLSX, queue.FormatCSV:
		rows, err := r.votes(ctx, votingID)
		if err != nil {
			return nil, err
		}
		f := &File{Name: fmt.Sprintf("votes_voting_%d.%s", votingID, format), Ext: format}
		if format == queue.FormatXLSX {
			f.ContentType = xlsxContentType
			f.Body, err = RenderXLSX(rows)
		} else {
			f.ContentType = "text/csv; charset=utf-8"
			f.Body, err = RenderCSV(rows)
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, domainerrors.Invalid("format", fmt.Sprintf("unsupported format %q", format))
	}
}

func (r *Renderer) votes(ctx context.Context, votingID int64) ([]models.VoteDetail, error) {
	var rows []models.VoteDetail
	err := r.store.View(ctx, func(rd store.Reader) error {
		if _, err := rd.GetVoting(ctx, votingID); err != nil {
			return err
		}
		var err error
		rows, err = rd.ListVotes(ctx, votingID)
		return err
	})
	if err != nil {
		return nil, domainerrors.Storage("export votes", err)
	}
	return rows, nil
}

// RenderJSON writes the nested voting representation indented by four spaces.
// Non-ASCII text is kept as is.
func RenderJSON(tree *models.Tree) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(votings.Encode(tree)); err != nil {
		return nil, fmt.Errorf("encode voting: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderXLSX builds a workbook with a single Votes sheet: VotesHeader, then one
// row per vote with ids as numbers.
func RenderXLSX(rows []models.VoteDetail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", VotesSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	header := make([]interface{}, len(VotesHeader))
	for i, h := range VotesHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(VotesSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, v := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{v.Username, v.QuestionID, v.QuestionTitle, v.ChoiceID, v.ChoiceName}
		if err := f.SetSheetRow(VotesSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderCSV writes one row per vote under VotesHeader.
func RenderCSV(rows []models.VoteDetail) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(VotesHeader); err != nil {
		return nil, err
	}
	for _, v := range rows {
		rec := []string{
			v.Username,
			strconv.FormatInt(v.QuestionID, 10),
			v.QuestionTitle,
			strconv.FormatInt(v.ChoiceID, 10),
			v.ChoiceName,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
