package answers

import (
	"context"
	"errors"
	"strings"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
	"github.com/digiklausur/data-gateway/pkg/storage"
)

// Payload fields recognized in a user's submission dataset.
const (
	FieldAnswers = "answers"
	FieldRanking = "ranking"
)

// FieldEntries holds the per-hash entry map inside an answer document.
const FieldEntries = "entries"

// DocumentPrefix prefixes the question id to form the shared answer
// document's key.
const DocumentPrefix = "answers_"

// Answer is one submitted answer: its display text and the hash that
// identifies it across users.
type Answer struct {
	Text string
	Hash string
}

// Submission is the answer/ranking portion of a user's dataset, keyed by
// question id.
type Submission struct {
	Answers map[string]Answer
	Ranking map[string]map[string]float64
}

// ParseSubmission extracts the answer payload from a dataset. The second
// return is false when the dataset carries no answers map at all.
// Malformed question entries are dropped rather than failing the whole
// submission.
func ParseSubmission(ds dataset.Dataset) (*Submission, bool) {
	rawAnswers, ok := ds[FieldAnswers].(map[string]interface{})
	if !ok {
		return nil, false
	}

	sub := &Submission{
		Answers: make(map[string]Answer, len(rawAnswers)),
		Ranking: make(map[string]map[string]float64),
	}
	for questionID, raw := range rawAnswers {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := fields["text"].(string)
		hash, _ := fields["hash"].(string)
		if hash == "" {
			continue
		}
		sub.Answers[questionID] = Answer{Text: text, Hash: hash}
	}

	if rawRanking, ok := ds[FieldRanking].(map[string]interface{}); ok {
		for questionID, raw := range rawRanking {
			ranks, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			parsed := make(map[string]float64, len(ranks))
			for hash, v := range ranks {
				if rank, ok := toFloat(v); ok {
					parsed[hash] = rank
				}
			}
			if len(parsed) > 0 {
				sub.Ranking[questionID] = parsed
			}
		}
	}
	return sub, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Entry is one distinct answer within a shared answer document: who
// submitted it and how each of them ranked it.
type Entry struct {
	Text     string
	Authors  map[string]bool
	RankedBy map[string]float64
}

// Aggregator merges user submissions into the shared per-question answer
// documents. Writes to a given document are serialized through a per-key
// mutex so concurrent submissions cannot lose each other's updates.
type Aggregator struct {
	store *storage.Store
	locks *keyedMutex
	log   *observability.Logger
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(store *storage.Store, log *observability.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		locks: newKeyedMutex(),
		log:   log,
	}
}

// Merge folds the submission into the shared answer document of every
// question it touches. Questions with a blank answer text are skipped.
func (a *Aggregator) Merge(ctx context.Context, collection, username string, sub *Submission) error {
	for questionID, answer := range sub.Answers {
		if strings.TrimSpace(answer.Text) == "" {
			continue
		}
		if err := a.mergeQuestion(ctx, collection, username, questionID, answer, sub.Ranking[questionID]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) mergeQuestion(ctx context.Context, collection, username, questionID string, answer Answer, ranking map[string]float64) error {
	docName := DocumentPrefix + questionID
	key := dataset.StringKey(docName)
	if !key.Valid() {
		a.log.WithField("question", questionID).Warn("skipping answer with invalid question id")
		return nil
	}

	unlock := a.locks.lock(collection + "/" + docName)
	defer unlock()

	doc, err := a.store.Get(ctx, collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		doc = dataset.New(key)
	} else if err != nil {
		return err
	}

	entries := entriesFromDataset(doc)

	entry, ok := entries[answer.Hash]
	if !ok {
		entry = &Entry{
			Text:     answer.Text,
			Authors:  make(map[string]bool),
			RankedBy: make(map[string]float64),
		}
		entries[answer.Hash] = entry
	}
	entry.Authors[username] = true

	// A user authors at most one answer per question. Moving to a new hash
	// withdraws them from every other entry; entries left without authors
	// are dropped.
	for hash, other := range entries {
		if hash == answer.Hash {
			continue
		}
		delete(other.Authors, username)
		if len(other.Authors) == 0 {
			a.log.WithField("question", questionID).WithField("hash", hash).Debug("removing answer left without authors")
			delete(entries, hash)
		}
	}

	if len(ranking) > 0 {
		maxRank := 0.0
		for _, rank := range ranking {
			if rank > maxRank {
				maxRank = rank
			}
		}
		if maxRank > 0 {
			// Normalizing by the user's own maximum keeps scores comparable
			// when users rank different numbers of answers.
			for hash, rank := range ranking {
				if ranked, ok := entries[hash]; ok {
					ranked.RankedBy[username] = rank / maxRank
				}
			}
		}
	}

	doc[FieldEntries] = entriesValue(entries)
	_, err = a.store.Set(ctx, collection, doc)
	return err
}

// entriesFromDataset decodes the generic entries map of a stored answer
// document. Unrecognized shapes are ignored so a hand-edited document
// cannot wedge the aggregator.
func entriesFromDataset(doc dataset.Dataset) map[string]*Entry {
	out := make(map[string]*Entry)
	raw, ok := doc[FieldEntries].(map[string]interface{})
	if !ok {
		return out
	}
	for hash, v := range raw {
		fields, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		entry := &Entry{
			Authors:  make(map[string]bool),
			RankedBy: make(map[string]float64),
		}
		entry.Text, _ = fields["text"].(string)
		if authors, ok := fields["authors"].(map[string]interface{}); ok {
			for name, flag := range authors {
				if b, ok := flag.(bool); ok && b {
					entry.Authors[name] = true
				}
			}
		}
		if ranked, ok := fields["ranked_by"].(map[string]interface{}); ok {
			for name, score := range ranked {
				if f, ok := toFloat(score); ok {
					entry.RankedBy[name] = f
				}
			}
		}
		out[hash] = entry
	}
	return out
}

func entriesValue(entries map[string]*Entry) map[string]interface{} {
	out := make(map[string]interface{}, len(entries))
	for hash, entry := range entries {
		authors := make(map[string]interface{}, len(entry.Authors))
		for name := range entry.Authors {
			authors[name] = true
		}
		ranked := make(map[string]interface{}, len(entry.RankedBy))
		for name, score := range entry.RankedBy {
			ranked[name] = score
		}
		out[hash] = map[string]interface{}{
			"text":      entry.Text,
			"authors":   authors,
			"ranked_by": ranked,
		}
	}
	return out
}
