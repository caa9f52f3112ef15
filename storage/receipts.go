package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/wager-match/models"
)

// MatchReceipt is the archived audit record of a finished match.
type MatchReceipt struct {
	Match      *models.MatchRecord   `json:"match"`
	Entries    []*models.LedgerEntry `json:"ledger_entries"`
	ArchivedAt time.Time             `json:"archived_at"`
}

// ReceiptArchive stores receipts of completed and abandoned matches.
type ReceiptArchive interface {
	Archive(ctx context.Context, receipt *MatchReceipt) (*UploadResult, error)
}

type uploaderReceiptArchive struct {
	uploader FileUploader
	prefix   string
}

func NewReceiptArchive(uploader FileUploader, prefix string) ReceiptArchive {
	return &uploaderReceiptArchive{uploader: uploader, prefix: prefix}
}

func ReceiptKey(prefix, code string) string {
	return fmt.Sprintf("%s/%s.json", prefix, code)
}

func (a *uploaderReceiptArchive) Archive(ctx context.Context, receipt *MatchReceipt) (*UploadResult, error) {
	if receipt == nil || receipt.Match == nil {
		return nil, fmt.Errorf("receipt without match")
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt for match %s: %w", receipt.Match.Code, err)
	}
	return a.uploader.Upload(ctx, ReceiptKey(a.prefix, receipt.Match.Code), "application/json", bytes.NewReader(body))
}
