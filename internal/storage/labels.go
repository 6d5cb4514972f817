package storage

import (
	"context"
	"fmt"

	"imagebank/internal/models"
)

// SuperCategoryWithChildren loads a super category and all its child
// categories.
func (s *Storage) SuperCategoryWithChildren(ctx context.Context, id int64) (*models.LabelSuperCategory, []models.LabelCategory, error) {
	const op = "storage.SuperCategoryWithChildren"

	var super models.LabelSuperCategory
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM label_super_categories WHERE id = $1`,
		id).Scan(&super.ID, &super.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %v", op, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, super_category_id FROM label_categories WHERE super_category_id = $1 ORDER BY id`,
		id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %v", op, err)
	}
	defer rows.Close()

	var children []models.LabelCategory
	for rows.Next() {
		var c models.LabelCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.SuperCategoryID); err != nil {
			return nil, nil, fmt.Errorf("%s: %v", op, err)
		}
		children = append(children, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: %v", op, err)
	}
	return &super, children, nil
}

// CategoryWithParent loads a category plus the name of its super category,
// or "" when the category has none.
func (s *Storage) CategoryWithParent(ctx context.Context, id int64) (*models.LabelCategory, string, error) {
	const op = "storage.CategoryWithParent"

	var c models.LabelCategory
	var parent *string
	err := s.pool.QueryRow(ctx,
		`SELECT c.id, c.name, c.super_category_id, s.name
		FROM label_categories c
		LEFT JOIN label_super_categories s ON s.id = c.super_category_id
		WHERE c.id = $1`,
		id).Scan(&c.ID, &c.Name, &c.SuperCategoryID, &parent)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %v", op, err)
	}

	parentName := ""
	if parent != nil {
		parentName = *parent
	}
	return &c, parentName, nil
}
