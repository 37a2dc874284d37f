// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/models"
)

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Inspect and maintain the category taxonomies",
	}
	cmd.AddCommand(newCategoriesTreeCmd(a))
	cmd.AddCommand(newCategoriesDeleteCmd(a))
	cmd.AddCommand(newCategoriesMergeCmd(a))
	cmd.AddCommand(newCategoriesResolveCmd(a))
	return cmd
}

// typeFlag parses an optional --type value; empty means both taxonomies.
func typeFlag(raw string) (models.CategoryType, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseCategoryType(raw)
}

func newCategoriesTreeCmd(a *app) *cobra.Command {
	var (
		rawType string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the category tree with product counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := typeFlag(rawType)
			if err != nil {
				return err
			}
			categories, _, err := a.stores()
			if err != nil {
				return err
			}
			tree, err := categories.Tree(cmd.Context(), t)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(tree)
			}
			printTree(stdout, tree, 0)
			return nil
		},
	}
	cmd.Flags().StringVar(&rawType, "type", "", "Taxonomy: vendor or store (default both)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the tree as JSON")
	return cmd
}

// printTree writes one line per category, indented by depth.
func printTree(w io.Writer, nodes []models.Category, depth int) {
	for _, c := range nodes {
		label := c.Name
		if depth == 0 {
			label += " [" + string(c.Type) + "]"
		}
		fmt.Fprintf(w, "%s%s (id %d, %d products)\n", strings.Repeat("  ", depth), label, c.ID, c.ProductCount)
		printTree(w, c.Children, depth+1)
	}
}

// parseIDs parses positive category ids.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid category id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newCategoriesDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete categories with their subtrees; their products move to Uncategorized",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			categories, _, err := a.stores()
			if err != nil {
				return err
			}
			n, err := categories.BulkDelete(cmd.Context(), ids)
			if err != nil {
				return err
			}
			a.invalidateTrees(cmd.Context())
			return writeJSON(map[string]any{"deletedCount": n})
		},
	}
}

func newCategoriesMergeCmd(a *app) *cobra.Command {
	var (
		source, target int64
		rawType        string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Move every product of one category to another",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := typeFlag(rawType)
			if err != nil {
				return err
			}
			categories, _, err := a.stores()
			if err != nil {
				return err
			}
			moved, err := categories.Merge(cmd.Context(), source, target, t)
			if err != nil {
				return err
			}
			a.invalidateTrees(cmd.Context())
			return writeJSON(map[string]any{"productsMoved": moved})
		},
	}
	cmd.Flags().Int64Var(&source, "source", 0, "Source category id (required)")
	cmd.Flags().Int64Var(&target, "target", 0, "Target category id (required)")
	cmd.Flags().StringVar(&rawType, "type", "", "Expected taxonomy of both categories")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newCategoriesResolveCmd(a *app) *cobra.Command {
	var rawType string
	cmd := &cobra.Command{
		Use:   `resolve "Root > Child > Leaf"`,
		Short: "Find or create a category path and print the leaf id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseCategoryType(rawType)
			if err != nil {
				return err
			}
			segments := hierarchy.SplitPath(args[0])
			if len(segments) > models.MaxCategoryDepth {
				return fmt.Errorf("path has %d levels, at most %d are supported", len(segments), models.MaxCategoryDepth)
			}
			categories, _, err := a.stores()
			if err != nil {
				return err
			}
			id, err := categories.ResolveChain(cmd.Context(), t, segments)
			if err != nil {
				return err
			}
			a.invalidateTrees(cmd.Context())
			return writeJSON(map[string]any{"id": id, "path": hierarchy.JoinPath(segments)})
		},
	}
	cmd.Flags().StringVar(&rawType, "type", "", "Taxonomy: vendor or store (required)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
