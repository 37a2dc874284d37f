// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import "errors"

// Sentinel errors returned by the catalog stores. Handlers map them to HTTP
// status codes with errors.Is.
var (
	ErrCategoryNotFound  = errors.New("category not found")
	ErrDuplicateCategory = errors.New("a category with this name already exists under the same parent")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrTypeMismatch      = errors.New("cannot merge categories of different types")
	ErrParentType        = errors.New("parent category belongs to a different taxonomy")
	ErrSameCategory      = errors.New("source and target category are the same")
	ErrProtectedCategory = errors.New("the Uncategorized category cannot be deleted")
	ErrCycle             = errors.New("a category cannot be moved under itself or one of its descendants")
	ErrTooDeep           = errors.New("category hierarchy is too deep")
)
