package server

import (
	"time"

	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/session"
	"github.com/dotside-studios/davi-ndef-viewer/view"
)

func batchSummary(index int, b scanlog.Batch) protocol.BatchSummaryPayload {
	return protocol.BatchSummaryPayload{
		Index:        index,
		ID:           b.ID,
		Source:       b.Source,
		ScannedAt:    b.ScannedAt.Format(time.RFC3339),
		MessageCount: len(b.Messages),
		Label:        view.SectionHeader(b),
	}
}

func batchSummaries(store *scanlog.Store) []protocol.BatchSummaryPayload {
	batches := store.Batches()
	out := make([]protocol.BatchSummaryPayload, 0, len(batches))
	for i, b := range batches {
		out = append(out, batchSummary(i, b))
	}
	return out
}

func batchDetail(store *scanlog.Store, index int) (protocol.BatchDetailPayload, error) {
	b, err := store.BatchAt(index)
	if err != nil {
		return protocol.BatchDetailPayload{}, err
	}

	rows := make([]protocol.MessageRowPayload, 0, len(b.Messages))
	for i, m := range b.Messages {
		rows = append(rows, protocol.MessageRowPayload{
			Index:       i,
			Title:       view.RowTitle(m),
			RecordCount: m.Len(),
		})
	}
	return protocol.BatchDetailPayload{BatchSummaryPayload: batchSummary(index, b), Messages: rows}, nil
}

func messageDetail(store *scanlog.Store, batch, message int) (protocol.MessageDetailPayload, error) {
	m, err := store.MessageAt(batch, message)
	if err != nil {
		return protocol.MessageDetailPayload{}, err
	}
	return protocol.MessageDetailPayload{
		BatchIndex:   batch,
		MessageIndex: message,
		Title:        view.AlertTitle(m),
		Body:         view.AlertBody(m),
		Records:      view.DescribeMessage(m),
	}, nil
}

func sessionState(s *session.Scanner) protocol.SessionPayload {
	return protocol.SessionPayload{State: s.State().String(), Host: s.HostName()}
}
