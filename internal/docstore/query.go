package docstore

import (
	"fmt"
	"sort"
	"strings"
)

func (q Query) validate() error {
	if strings.TrimSpace(q.Collection) == "" {
		return fmt.Errorf("%w: empty collection", ErrUnsupportedQuery)
	}
	if strings.TrimSpace(q.OwnerField) == "" || strings.TrimSpace(q.OwnerID) == "" {
		return fmt.Errorf("%w: owner filter required", ErrUnsupportedQuery)
	}
	return nil
}

func (q Query) matches(document Document) bool {
	return ownerOf(document, q.OwnerField) == q.OwnerID
}

// sortSnapshots orders by the query's order field. Documents without a readable timestamp sort
// after those with one; ties fall back to the document id in the query's direction so the order
// is total.
func (q Query) sortSnapshots(snapshots []Snapshot) {
	if q.OrderField == "" {
		sort.SliceStable(snapshots, func(i, j int) bool {
			return snapshots[i].Key.ID < snapshots[j].Key.ID
		})
		return
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		left, leftOK := TimestampValue(snapshots[i].Data[q.OrderField])
		right, rightOK := TimestampValue(snapshots[j].Data[q.OrderField])
		switch {
		case leftOK != rightOK:
			return leftOK
		case !leftOK || left.Equal(right):
			if q.Descending {
				return snapshots[i].Key.ID > snapshots[j].Key.ID
			}
			return snapshots[i].Key.ID < snapshots[j].Key.ID
		case q.Descending:
			return left.After(right)
		default:
			return left.Before(right)
		}
	})
}

// evaluate filters and orders documents of one collection.
func (q Query) evaluate(documents map[string]Document) []Snapshot {
	matched := make([]Snapshot, 0, len(documents))
	for id, document := range documents {
		if !q.matches(document) {
			continue
		}
		matched = append(matched, Snapshot{
			Key:    Key{Collection: q.Collection, ID: id},
			Exists: true,
			Data:   cloneDocument(document),
		})
	}
	q.sortSnapshots(matched)
	return matched
}

func orderKey(document Document, orderField string) int64 {
	if orderField == "" {
		return 0
	}
	value, ok := TimestampValue(document[orderField])
	if !ok {
		return 0
	}
	return value.UTC().UnixMicro()
}
