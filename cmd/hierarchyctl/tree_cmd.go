package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"catalog-hierarchy/database"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/spf13/cobra"
)

func newTreeCmd(opts *globalOptions) *cobra.Command {
	var (
		rootID   string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the forest, or the subtree under --root",
		RunE: func(cmd *cobra.Command, args []string) error {
			var limit *int
			if maxDepth >= 0 {
				limit = &maxDepth
			}
			return withManager(cmd.Context(), opts, func(ctx context.Context, m *services.HierarchyManager) error {
				nodes, err := collectTree(ctx, m, rootID, limit)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), models.NewNodeListResponse(nodes))
				}
				renderTree(cmd.OutOrStdout(), nodes)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rootID, "root", "", "only print the subtree under this node")
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "levels below each root to print (-1 for all)")
	return cmd
}

type treeReader interface {
	Get(ctx context.Context, id string) (*models.CategoryNode, error)
	Children(ctx context.Context, parentID *string) ([]*models.CategoryNode, error)
	Descendants(ctx context.Context, nodeID string, maxDepth *int) ([]*models.CategoryNode, error)
}

func collectTree(ctx context.Context, r treeReader, rootID string, maxDepth *int) ([]*models.CategoryNode, error) {
	var roots []*models.CategoryNode
	if rootID != "" {
		root, err := r.Get(ctx, rootID)
		if err != nil {
			return nil, err
		}
		roots = []*models.CategoryNode{root}
	} else {
		var err error
		if roots, err = r.Children(ctx, nil); err != nil {
			return nil, err
		}
	}

	var nodes []*models.CategoryNode
	for _, root := range roots {
		nodes = append(nodes, root)
		below, err := r.Descendants(ctx, root.ID, maxDepth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, below...)
	}
	return nodes, nil
}

// renderTree prints nodes indented under their parents in sibling order.
// Nodes whose parent is not in the list start a new top-level branch.
func renderTree(w io.Writer, nodes []*models.CategoryNode) {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	children := make(map[string][]*models.CategoryNode)
	var tops []*models.CategoryNode
	for _, n := range nodes {
		if n.ParentID == nil || !present[*n.ParentID] {
			tops = append(tops, n)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n)
	}

	var walk func(n *models.CategoryNode, level int)
	walk = func(n *models.CategoryNode, level int) {
		fmt.Fprintf(w, "%s%s (%s) %s\n", strings.Repeat("  ", level), n.Name, n.ID, n.MaterializedPath)
		kids := children[n.ID]
		database.SortSiblings(kids)
		for _, c := range kids {
			walk(c, level+1)
		}
	}

	database.SortSiblings(tops)
	for _, n := range tops {
		walk(n, 0)
	}
}
