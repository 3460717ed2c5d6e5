package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/branchvote/branchvote-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNodeRows(nodes ...*domain.Node) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "tree_id", "parent_id", "side", "depth", "title", "description",
		"context", "question", "media_url", "generated", "discovered_by",
		"discovered_at", "visits", "created_at", "updated_at",
	})
	for _, node := range nodes {
		var parentID any
		if node.ParentID != nil {
			parentID = node.ParentID.String()
		}
		var side any
		if node.Side != nil {
			side = string(*node.Side)
		}
		rows.AddRow(
			node.ID.String(),
			node.TreeID.String(),
			parentID,
			side,
			node.Depth,
			node.Title,
			node.Description,
			node.Context,
			node.Question,
			node.MediaURL,
			node.Generated,
			node.DiscoveredBy,
			node.DiscoveredAt,
			node.Visits,
			node.CreatedAt,
			node.UpdatedAt,
		)
	}
	return rows
}

func strPtr(s string) *string { return &s }

func sampleRootNode(t *testing.T) *domain.Node {
	t.Helper()
	node, err := domain.NewRootNode(uuid.New(), domain.NodeContent{
		Title:       "The Crossroads",
		Description: "Two paths diverge in the fog.",
		Context:     "You stand at the trailhead at dawn.",
	}, strPtr("https://cdn.example.com/placeholder.png"))
	require.NoError(t, err)
	return node
}

func TestPostgresNodeStore_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	root := sampleRootNode(t)

	mock.ExpectQuery(`SELECT (.+) FROM nodes WHERE id = \$1`).
		WithArgs(root.ID.String()).
		WillReturnRows(newNodeRows(root))

	nodeStore := NewPostgresNodeStore(db, nil)
	got, err := nodeStore.GetByID(context.Background(), root.ID)
	require.NoError(t, err)

	assert.Equal(t, root.ID, got.ID)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.Side)
	assert.True(t, got.IsRoot())
	assert.False(t, got.Generated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM nodes`).
		WithArgs(id.String()).
		WillReturnRows(newNodeRows())

	nodeStore := NewPostgresNodeStore(db, nil)
	_, err = nodeStore.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNodeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_GetByIDForUpdate_LocksRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	root := sampleRootNode(t)

	mock.ExpectQuery(`SELECT (.+) FROM nodes WHERE id = \$1 FOR UPDATE`).
		WithArgs(root.ID.String()).
		WillReturnRows(newNodeRows(root))

	nodeStore := NewPostgresNodeStore(db, nil)
	got, err := nodeStore.GetByIDForUpdate(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_GetChildren_ScansChildFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	parent := sampleRootNode(t)
	left, err := domain.NewChildNode(parent, domain.SideLeft, domain.NodeContent{
		Title:       "Into the Woods",
		Description: "The canopy swallows the light.",
		Context:     "You took the left path into the woods.",
	}, strPtr("https://cdn.example.com/placeholder.png"), strPtr("voter-42"))
	require.NoError(t, err)
	right, err := domain.NewChildNode(parent, domain.SideRight, domain.NodeContent{
		Title:       "Along the River",
		Description: "Cold water hums beside the trail.",
		Context:     "You took the right path along the river.",
	}, strPtr("https://cdn.example.com/placeholder.png"), strPtr("voter-42"))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM nodes`).
		WithArgs(parent.ID.String()).
		WillReturnRows(newNodeRows(left, right))

	nodeStore := NewPostgresNodeStore(db, nil)
	children, err := nodeStore.GetChildren(context.Background(), parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)

	assert.Equal(t, domain.SideLeft, *children[0].Side)
	assert.Equal(t, domain.SideRight, *children[1].Side)
	require.NotNil(t, children[0].ParentID)
	assert.Equal(t, parent.ID, *children[0].ParentID)
	require.NotNil(t, children[0].DiscoveredBy)
	assert.Equal(t, "voter-42", *children[0].DiscoveredBy)
	assert.Equal(t, 1, children[0].Depth)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_MarkGenerated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectExec(`UPDATE nodes`).
		WithArgs("Into the woods or along the river?", sqlmock.AnyArg(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	nodeStore := NewPostgresNodeStore(db, nil)
	err = nodeStore.MarkGenerated(context.Background(), id, "Into the woods or along the river?")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_MarkGenerated_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectExec(`UPDATE nodes`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	nodeStore := NewPostgresNodeStore(db, nil)
	err = nodeStore.MarkGenerated(context.Background(), id, "question")
	assert.ErrorIs(t, err, store.ErrNodeNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_IncrementVisits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectExec(`UPDATE nodes SET visits = visits \+ 1`).
		WithArgs(id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	nodeStore := NewPostgresNodeStore(db, nil)
	err = nodeStore.IncrementVisits(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNodeStore_FindPlaceholderNodesWithoutTasks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	treeID := uuid.New()
	node := sampleRootNode(t)
	node.TreeID = treeID
	node.CreatedAt = time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM nodes n`).
		WithArgs(treeID.String(), "https://cdn.example.com/placeholder.png").
		WillReturnRows(newNodeRows(node))

	nodeStore := NewPostgresNodeStore(db, nil)
	nodes, err := nodeStore.FindPlaceholderNodesWithoutTasks(
		context.Background(),
		treeID,
		"https://cdn.example.com/placeholder.png",
	)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, node.ID, nodes[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
