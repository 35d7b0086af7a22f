// Package answers aggregates submitted answers into shared per-question
// documents.
//
// When a user saves their own dataset with an "answers" payload, the
// aggregator folds each answer into the document "answers_<questionId>"
// of the same collection. Answers are identified by a client-computed
// hash: users submitting the same hash share one entry, and each entry
// records its authors and per-user normalized ranking scores.
//
// A user authors at most one answer per question; submitting a new hash
// withdraws them from their previous entry, and entries left without
// authors are deleted. Ranking values are normalized against the
// submitting user's maximum rank, so every stored score lies in (0, 1].
//
// Merges for the same document are serialized through a per-key mutex,
// so concurrent submissions to one question cannot overwrite each other.
package answers
