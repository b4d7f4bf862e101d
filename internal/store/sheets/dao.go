package sheets

import (
	"context"
	"fmt"
	"time"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"chgk-poll-bot/internal/store"
)

const SheetDocuments = "Documents"

// A single cell holds at most 50000 characters; documents are expected to
// stay well below that.

func (c *Client) readAll(ctx context.Context) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, c.sheet+"!A:C").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A:C", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *Client) updateRow(ctx context.Context, rowNum int, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	a1 := fmt.Sprintf("%s!A%d:C%d", c.sheet, rowNum, rowNum)
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// find returns the document body and its 1-indexed sheet row, or row 0.
func (c *Client) find(ctx context.Context, key string) (string, int, error) {
	values, err := c.readAll(ctx)
	if err != nil {
		return "", 0, err
	}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		if get(values[i], 0) == key {
			return get(values[i], 1), i + 1, nil
		}
	}
	return "", 0, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	body, rowNum, err := c.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if rowNum == 0 {
		return nil, store.ErrNotFound
	}
	return []byte(body), nil
}

func (c *Client) Put(ctx context.Context, key string, doc []byte) error {
	_, rowNum, err := c.find(ctx, key)
	if err != nil {
		return err
	}
	return c.write(ctx, key, rowNum, doc)
}

func (c *Client) write(ctx context.Context, key string, rowNum int, doc []byte) error {
	row := []interface{}{key, string(doc), time.Now().UTC().Format(time.RFC3339)}
	if rowNum == 0 {
		return c.appendRow(ctx, row)
	}
	return c.updateRow(ctx, rowNum, row)
}

// Update is a plain read-modify-write: Sheets offers no row locking, so a
// concurrent writer to the same key may be overwritten.
func (c *Client) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	body, rowNum, err := c.find(ctx, key)
	if err != nil {
		return err
	}
	var cur []byte
	if rowNum != 0 {
		cur = []byte(body)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return c.write(ctx, key, rowNum, next)
}

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
