package question

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/pallavi191/codecraft-sub001/internal/domain"
	"github.com/pallavi191/codecraft-sub001/internal/errors"
)

// Bank deals the fixed question set for a session. Both players of a
// session receive the exact same deal.
type Bank interface {
	// Deal returns n questions as a deterministic mix of categories:
	// categories are cycled round-robin so every deal has the same
	// composition regardless of bank contents.
	Deal(ctx context.Context, n int) ([]domain.Question, error)
}

// StaticBank deals from an in-memory question set. It backs tests and
// standalone runs; production wires the pgx Repository instead.
type StaticBank struct {
	mu        sync.Mutex
	rng       *rand.Rand
	byCat     map[string][]domain.Question
	catOrder  []string
	questions []domain.Question
}

// NewStaticBank builds a bank over qs. A nil qs falls back to the compiled
// seed set.
func NewStaticBank(qs []domain.Question, seed int64) *StaticBank {
	if qs == nil {
		qs = seedQuestions
	}

	b := &StaticBank{
		rng:       rand.New(rand.NewSource(seed)),
		byCat:     make(map[string][]domain.Question),
		questions: qs,
	}
	for _, q := range qs {
		if _, ok := b.byCat[q.Category]; !ok {
			b.catOrder = append(b.catOrder, q.Category)
		}
		b.byCat[q.Category] = append(b.byCat[q.Category], q)
	}
	sort.Strings(b.catOrder)
	return b
}

func (b *StaticBank) Deal(_ context.Context, n int) ([]domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.questions) < n {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("question bank has %d questions, need %d", len(b.questions), n))
	}

	// Shuffle inside each category, then draw cycling through categories
	// so the mix is fixed even though the picks are not.
	pools := make(map[string][]domain.Question, len(b.byCat))
	for cat, qs := range b.byCat {
		pool := append([]domain.Question(nil), qs...)
		b.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		pools[cat] = pool
	}

	dealt := make([]domain.Question, 0, n)
	for len(dealt) < n {
		drew := false
		for _, cat := range b.catOrder {
			if len(dealt) == n {
				break
			}
			pool := pools[cat]
			if len(pool) == 0 {
				continue
			}
			dealt = append(dealt, pool[0])
			pools[cat] = pool[1:]
			drew = true
		}
		if !drew {
			break
		}
	}

	if len(dealt) < n {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("question bank exhausted at %d of %d", len(dealt), n))
	}
	return dealt, nil
}
