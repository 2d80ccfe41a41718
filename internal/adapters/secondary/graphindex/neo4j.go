package graphindex

import (
	"context"
	"fmt"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jIndex est la projection des arêtes "suit", alimentée par les événements engagement.edge.toggled.
// Les relations ne sont jamais supprimées : r.present + r.at donnent un last-writer-wins
// qui tolère les événements livrés dans le désordre.
type Neo4jIndex struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jIndex(driver neo4j.DriverWithContext) *Neo4jIndex {
	return &Neo4jIndex{driver: driver}
}

var labels = map[domain.Collection]string{
	domain.CollectionPersons: "Person",
	domain.CollectionArtists: "Artist",
}

// EnsureSchema crée les contraintes d'unicité (et donc les index) sur les ids.
func (r *Neo4jIndex) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, label := range labels {
			query := fmt.Sprintf(`CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE`,
				label, label)
			if _, err := tx.Run(ctx, query, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *Neo4jIndex) ApplyEdge(ctx context.Context, e domain.EdgeToggled) error {
	mirror, err := e.Kind.Mirror()
	if err != nil {
		return err
	}
	subjectLabel, objectLabel := labels[mirror.SubjectCollection], labels[mirror.ObjectCollection]

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// MERGE est idempotent ; un événement plus ancien que l'état connu est ignoré.
		query := fmt.Sprintf(`
			MERGE (a:%s {id: $subjectId})
			MERGE (b:%s {id: $objectId})
			MERGE (a)-[r:FOLLOWS {kind: $kind}]->(b)
			WITH r
			WHERE r.at IS NULL OR r.at <= $at
			SET r.present = $present, r.at = $at
		`, subjectLabel, objectLabel)
		_, err := tx.Run(ctx, query, map[string]any{
			"subjectId": e.SubjectID,
			"objectId":  e.ObjectID,
			"kind":      string(e.Kind),
			"present":   e.Present,
			"at":        e.At,
		})
		return nil, err
	})
	return err
}

// RelationStatus : relation personne <-> personne, dans les deux sens, en une requête.
func (r *Neo4jIndex) RelationStatus(ctx context.Context, actorID, targetID string) (*domain.RelationStatus, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			OPTIONAL MATCH (:Person {id: $actorId})-[out:FOLLOWS {kind: $kind}]->(:Person {id: $targetId})
			OPTIONAL MATCH (:Person {id: $targetId})-[in:FOLLOWS {kind: $kind}]->(:Person {id: $actorId})
			RETURN coalesce(out.present, false) AS following, coalesce(in.present, false) AS followedBy
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"actorId":  actorID,
			"targetId": targetID,
			"kind":     string(domain.EdgePersonPerson),
		})
		if err != nil {
			return nil, err
		}

		if res.Next(ctx) {
			rec := res.Record()
			following, _ := rec.Get("following")
			followedBy, _ := rec.Get("followedBy")
			f, _ := following.(bool)
			fb, _ := followedBy.(bool)
			return &domain.RelationStatus{IsFollowing: f, IsFollowedBy: fb}, nil
		}
		return &domain.RelationStatus{}, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.RelationStatus), nil
}
