package handlers

import (
	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/catalog"
	"github.com/ent0n29/horizon/internal/dataaccess"
	"github.com/ent0n29/horizon/internal/safety"
	"github.com/ent0n29/horizon/internal/turn"
)

// Retriever supplies reference passages for grounded answers.
type Retriever interface {
	Search(query string, k int) []catalog.Passage
}

// Deps are the collaborators shared by the default handlers.
type Deps struct {
	Provider  brain.Provider
	Validator *safety.Validator
	Runner    dataaccess.Runner
	Catalog   *catalog.Catalog
	Entities  dataaccess.EntitySource
	Retriever Retriever
}

// Default wires the standard handler for every intent.
func Default(d Deps) (*Registry, error) {
	cat := d.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	validator := d.Validator
	if validator == nil {
		validator = safety.New(safety.DefaultMaxLimit, safety.PolicyReject)
	}
	return NewRegistry(map[turn.Intent]Handler{
		turn.IntentDataQuery:           &DataQuery{Provider: d.Provider, Validator: validator, Runner: d.Runner, Catalog: cat},
		turn.IntentDocumentGeneration:  &Document{Provider: d.Provider, Retriever: d.Retriever},
		turn.IntentEntitySummary:       &EntitySummary{Provider: d.Provider, Entities: d.Entities},
		turn.IntentInformationalAnswer: &Answer{Provider: d.Provider, Retriever: d.Retriever},
		turn.IntentCreateArtifact:      &Artifact{Provider: d.Provider},
		turn.IntentOutOfScope:          Canned(turn.IntentOutOfScope, OutOfScopeMessage),
		turn.IntentUnresolved:          Canned(turn.IntentUnresolved, UnresolvedMessage),
	})
}

func historyMessages(snap turn.Snapshot) []brain.Message {
	msgs := make([]brain.Message, 0, len(snap.History)+1)
	for _, m := range snap.History {
		msgs = append(msgs, brain.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, brain.Message{Role: string(turn.RoleUser), Content: snap.UserInput})
}
