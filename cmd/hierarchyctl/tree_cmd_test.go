package main

import (
	"bytes"
	"context"
	"testing"

	"catalog-hierarchy/database"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, parent, name, path string, depth, sort int) *models.CategoryNode {
	return &models.CategoryNode{
		ID:               id,
		ParentID:         models.StringPtr(parent),
		Name:             name,
		MaterializedPath: path,
		Depth:            depth,
		SortOrder:        sort,
	}
}

func newSeededManager(t *testing.T) *services.HierarchyManager {
	t.Helper()
	store := database.NewMemoryTreeStore(0)
	store.Seed(
		node("e", "", "Electronics", "electronics", 0, 0),
		node("p", "e", "Phones", "electronics/phones", 1, 1),
		node("t", "e", "TV", "electronics/tv", 1, 0),
		node("s", "p", "Smartphones", "electronics/phones/smartphones", 2, 0),
		node("h", "", "Home", "home", 0, 1),
	)
	return services.NewHierarchyManager(store, nil)
}

func TestRenderTree_IndentsBySiblingOrder(t *testing.T) {
	var buf bytes.Buffer
	renderTree(&buf, []*models.CategoryNode{
		node("h", "", "Home", "home", 0, 1),
		node("s", "p", "Smartphones", "electronics/phones/smartphones", 2, 0),
		node("p", "e", "Phones", "electronics/phones", 1, 1),
		node("e", "", "Electronics", "electronics", 0, 0),
		node("t", "e", "TV", "electronics/tv", 1, 0),
	})

	expected := "Electronics (e) electronics\n" +
		"  TV (t) electronics/tv\n" +
		"  Phones (p) electronics/phones\n" +
		"    Smartphones (s) electronics/phones/smartphones\n" +
		"Home (h) home\n"
	assert.Equal(t, expected, buf.String())
}

func TestRenderTree_DetachedSubtreeStartsAtTop(t *testing.T) {
	var buf bytes.Buffer
	renderTree(&buf, []*models.CategoryNode{
		node("p", "e", "Phones", "electronics/phones", 1, 0),
		node("s", "p", "Smartphones", "electronics/phones/smartphones", 2, 0),
	})

	assert.Equal(t, "Phones (p) electronics/phones\n  Smartphones (s) electronics/phones/smartphones\n", buf.String())
}

func TestCollectTree(t *testing.T) {
	m := newSeededManager(t)
	ctx := context.Background()

	all, err := collectTree(ctx, m, "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	sub, err := collectTree(ctx, m, "p", nil)
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "p", sub[0].ID)
	assert.Equal(t, "s", sub[1].ID)

	zero := 0
	roots, err := collectTree(ctx, m, "", &zero)
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	_, err = collectTree(ctx, m, "missing", nil)
	assert.Error(t, err)
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"migrate", "validate", "repair", "resolve-orphan", "move", "tree"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	move, _, err := root.Find([]string{"move"})
	require.NoError(t, err)
	assert.Error(t, move.Args(move, []string{}))
	assert.NotNil(t, move.Flags().Lookup("parent"))
}
