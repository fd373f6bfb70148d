package generator

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/jaswdr/faker"
)

// LabelSource names the client of each generated request.
type LabelSource interface {
	Next() string
}

// FakerLabels draws "First Last" client names.
type FakerLabels struct {
	fake faker.Faker
}

// NewFakerLabels seeds the name source. A zero seed uses a random one.
func NewFakerLabels(seed int64) *FakerLabels {
	if seed == 0 {
		return &FakerLabels{fake: faker.New()}
	}
	return &FakerLabels{fake: faker.NewWithSeed(rand.NewSource(seed))}
}

func (f *FakerLabels) Next() string {
	p := f.fake.Person()
	return p.FirstName() + " " + p.LastName()
}

// SequenceLabels yields Client-1, Client-2, ...
type SequenceLabels struct {
	n atomic.Int64
}

func (s *SequenceLabels) Next() string {
	return fmt.Sprintf("Client-%d", s.n.Add(1))
}
