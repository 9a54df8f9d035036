// Package extract derives the entity index rows for an incoming event.
//
// Entities are declared by the caller, not inferred from the payload: the
// payload schema is opaque to this service, so the index stays decoupled from
// it at the cost of requiring callers to say which entities matter.
package extract

import "audittrail/internal/event/models"

type triple struct {
	kind, id, role string
}

// Entities returns the set of (kind, id, role) tuples to index for a draft.
// The actor is always included with role "actor"; caller-declared entities
// keep their declared role, defaulting to "related". Exact duplicates within
// one event collapse to a single row. Order is deterministic: actor first,
// then declared entities in submission order.
func Entities(draft *models.Draft) []models.EventEntity {
	seen := make(map[triple]struct{}, len(draft.Entities)+1)
	out := make([]models.EventEntity, 0, len(draft.Entities)+1)

	add := func(kind, id, role string) {
		key := triple{kind, id, role}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, models.EventEntity{EntityKind: kind, EntityID: id, Role: role})
	}

	add(draft.Actor.Kind, draft.Actor.ID, models.RoleActor)
	for _, ref := range draft.Entities {
		role := ref.Role
		if role == "" {
			role = models.RoleRelated
		}
		add(ref.Kind, ref.ID, role)
	}
	return out
}
