package history

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"lukechampine.com/blake3"
)

// CSV builds a CSV export for the supplied records and returns the serialised
// data alongside a BLAKE3 checksum of the payload.
func CSV(records []Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"seq", "height", "type", "pool", "account", "attributes", "recorded_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, record := range records {
		row := []string{
			fmt.Sprintf("%d", record.Seq),
			fmt.Sprintf("%d", record.Height),
			record.Type,
			poolString(record.Pool),
			record.Account,
			record.Attributes,
			recordedAt(record),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// JSONL builds a JSON Lines export for the supplied records and returns the
// serialised payload alongside a checksum.
func JSONL(records []Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			return nil, "", fmt.Errorf("record %s: %w", record.ID, err)
		}
		payload := map[string]interface{}{
			"id":          record.ID.String(),
			"seq":         record.Seq,
			"height":      record.Height,
			"type":        record.Type,
			"account":     record.Account,
			"attributes":  attrs,
			"recorded_at": recordedAt(record),
		}
		if record.Pool != nil {
			payload["pool"] = *record.Pool
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func poolString(pool *uint64) string {
	if pool == nil {
		return ""
	}
	return fmt.Sprintf("%d", *pool)
}

func recordedAt(r Record) string {
	if r.CreatedAt.IsZero() {
		return ""
	}
	return r.CreatedAt.UTC().Format(time.RFC3339Nano)
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
