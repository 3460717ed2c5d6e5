package domain_test

import (
	"testing"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootNode(t *testing.T) {
	treeID := uuid.New()

	t.Run("valid root node", func(t *testing.T) {
		node, err := domain.NewRootNode(treeID, domain.NodeContent{
			Title:       "The Crossroads",
			Description: "Where it all begins",
			Context:     "A traveler arrives at a fork in the road.",
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, treeID, node.TreeID)
		assert.True(t, node.IsRoot())
		assert.Nil(t, node.ParentID)
		assert.Nil(t, node.Side)
		assert.Equal(t, 0, node.Depth)
		assert.False(t, node.Generated)
		assert.Nil(t, node.DiscoveredBy)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := domain.NewRootNode(treeID, domain.NodeContent{}, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyNodeTitle)
	})

	t.Run("empty tree ID rejected", func(t *testing.T) {
		_, err := domain.NewRootNode(uuid.Nil, domain.NodeContent{Title: "x"}, nil)
		assert.ErrorIs(t, err, domain.ErrEmptyNodeTreeID)
	})
}

func TestNewChildNode(t *testing.T) {
	parent, err := domain.NewRootNode(uuid.New(), domain.NodeContent{Title: "root"}, nil)
	require.NoError(t, err)

	t.Run("child inherits tree and deepens by one", func(t *testing.T) {
		placeholder := "https://cdn.example.com/placeholder.png"
		child, err := domain.NewChildNode(parent, domain.SideLeft, domain.NodeContent{
			Title:       "Take the bridge",
			Description: "A rickety rope bridge",
		}, &placeholder, nil)
		require.NoError(t, err)

		assert.Equal(t, parent.TreeID, child.TreeID)
		assert.Equal(t, parent.ID, *child.ParentID)
		assert.Equal(t, domain.SideLeft, *child.Side)
		assert.Equal(t, parent.Depth+1, child.Depth)
		assert.Nil(t, child.DiscoveredBy)
		assert.Nil(t, child.DiscoveredAt)
	})

	t.Run("discoverer recorded with timestamp", func(t *testing.T) {
		who := "user-42"
		child, err := domain.NewChildNode(parent, domain.SideRight,
			domain.NodeContent{Title: "Wade the river"}, nil, &who)
		require.NoError(t, err)

		require.NotNil(t, child.DiscoveredBy)
		assert.Equal(t, "user-42", *child.DiscoveredBy)
		assert.NotNil(t, child.DiscoveredAt)
	})

	t.Run("empty discoverer treated as absent", func(t *testing.T) {
		empty := ""
		child, err := domain.NewChildNode(parent, domain.SideRight,
			domain.NodeContent{Title: "Wade the river"}, nil, &empty)
		require.NoError(t, err)
		assert.Nil(t, child.DiscoveredBy)
	})
}

func TestNodeValidate(t *testing.T) {
	side := domain.SideLeft
	badSide := domain.Side("middle")
	parentID := uuid.New()

	tests := []struct {
		name    string
		mutate  func(*domain.Node)
		wantErr error
	}{
		{
			name:    "root with side rejected",
			mutate:  func(n *domain.Node) { n.Side = &side },
			wantErr: domain.ErrRootWithSide,
		},
		{
			name:    "root with nonzero depth rejected",
			mutate:  func(n *domain.Node) { n.Depth = 3 },
			wantErr: domain.ErrInvalidDepth,
		},
		{
			name:    "child without side rejected",
			mutate:  func(n *domain.Node) { n.ParentID = &parentID; n.Depth = 1 },
			wantErr: domain.ErrChildWithoutSide,
		},
		{
			name: "child with unknown side rejected",
			mutate: func(n *domain.Node) {
				n.ParentID = &parentID
				n.Side = &badSide
				n.Depth = 1
			},
			wantErr: domain.ErrInvalidSide,
		},
		{
			name: "child at depth zero rejected",
			mutate: func(n *domain.Node) {
				n.ParentID = &parentID
				n.Side = &side
				n.Depth = 0
			},
			wantErr: domain.ErrInvalidDepth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &domain.Node{
				ID:     uuid.New(),
				TreeID: uuid.New(),
				Title:  "a node",
			}
			tt.mutate(node)
			assert.ErrorIs(t, node.Validate(), tt.wantErr)
		})
	}
}

func TestMarkGenerated(t *testing.T) {
	node, err := domain.NewRootNode(uuid.New(), domain.NodeContent{Title: "root"}, nil)
	require.NoError(t, err)

	before := node.UpdatedAt
	node.MarkGenerated("Bridge or river?")

	assert.True(t, node.Generated)
	require.NotNil(t, node.Question)
	assert.Equal(t, "Bridge or river?", *node.Question)
	assert.False(t, node.UpdatedAt.Before(before))
}
