package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/imagestore"
)

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, includeInactive)
	return products, translate(err, "product", nil)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}
	if req.Price.IsNegative() {
		return domain.Product{}, apperror.NewValidation("price must not be negative").WithDetail("price", req.Price.String())
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:     req.Name,
		Category: req.Category,
		Price:    domain.Round2(req.Price),
		Quantity: req.InitialQuantity,
		Active:   true,
	})
	if err != nil {
		return domain.Product{}, translate(err, "product", req.Name)
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprint(created.ID),
		fmt.Sprintf("name=%s,price=%s,quantity=%d", created.Name, created.Price.StringFixed(2), created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, translate(err, "product", id)
	}

	next := *current
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		next.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, apperror.NewValidation("price must not be negative").WithDetail("price", req.Price.String())
		}
		next.Price = domain.Round2(*req.Price)
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if next.Name == "" || next.Category == "" {
		return domain.Product{}, apperror.NewValidation("name and category are required")
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, translate(err, "product", id)
	}

	s.logAudit(ctx, "product_update", "product", fmt.Sprint(id),
		fmt.Sprintf("name=%s,price=%s->%s,active=%t", updated.Name, current.Price.StringFixed(2), updated.Price.StringFixed(2), updated.Active))
	return *updated, nil
}

func (s *Service) ListMaterials(ctx context.Context, includeInactive bool) ([]domain.Material, error) {
	materials, err := s.repo.ListMaterials(ctx, includeInactive)
	return materials, translate(err, "material", nil)
}

func (s *Service) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (domain.Material, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Material{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if err := s.check(req); err != nil {
		return domain.Material{}, err
	}
	if req.Price.IsNegative() {
		return domain.Material{}, apperror.NewValidation("price must not be negative").WithDetail("price", req.Price.String())
	}

	created, err := s.repo.CreateMaterial(ctx, domain.Material{
		Name:     req.Name,
		Unit:     req.Unit,
		Price:    domain.Round2(req.Price),
		Quantity: req.InitialQuantity,
		Active:   true,
	})
	if err != nil {
		return domain.Material{}, translate(err, "material", req.Name)
	}

	s.logAudit(ctx, "material_create", "material", fmt.Sprint(created.ID),
		fmt.Sprintf("name=%s,quantity=%d", created.Name, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateMaterial(ctx context.Context, id int64, req domain.MaterialUpdateRequest) (domain.Material, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Material{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Material{}, err
	}

	current, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return domain.Material{}, translate(err, "material", id)
	}

	next := *current
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.Unit != nil {
		next.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Material{}, apperror.NewValidation("price must not be negative").WithDetail("price", req.Price.String())
		}
		next.Price = domain.Round2(*req.Price)
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if next.Name == "" {
		return domain.Material{}, apperror.NewValidation("name is required")
	}

	updated, err := s.repo.UpdateMaterial(ctx, next)
	if err != nil {
		return domain.Material{}, translate(err, "material", id)
	}

	s.logAudit(ctx, "material_update", "material", fmt.Sprint(id),
		fmt.Sprintf("name=%s,active=%t", updated.Name, updated.Active))
	return *updated, nil
}

// UploadItemImage normalizes an uploaded picture, stores it, and points the item at it.
func (s *Service) UploadItemImage(ctx context.Context, item domain.ItemRef, data []byte) (string, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return "", err
	}
	if s.images == nil {
		return "", apperror.NewConflict("image storage is not configured")
	}
	if !item.Valid() {
		return "", apperror.NewValidation("invalid item").WithDetail("item", item.String())
	}
	if err := s.ensureItem(ctx, item); err != nil {
		return "", err
	}

	normalized, err := imagestore.Normalize(data)
	if errors.Is(err, imagestore.ErrInvalidImage) {
		return "", apperror.NewValidation("upload must be a JPEG, PNG, GIF, BMP or TIFF image up to 5 MB").WithCause(err)
	}
	if err != nil {
		return "", apperror.NewInternal(err)
	}

	path, err := s.images.Put(ctx, imagestore.Key(string(item.Kind), item.ID), normalized)
	if err != nil {
		return "", apperror.NewTransient(err)
	}
	if err := s.repo.SetItemImage(ctx, item, path); err != nil {
		return "", translate(err, string(item.Kind), item.ID)
	}

	s.logAudit(ctx, "item_image_upload", string(item.Kind), fmt.Sprint(item.ID), path)
	return path, nil
}

func (s *Service) ensureItem(ctx context.Context, item domain.ItemRef) error {
	var err error
	switch item.Kind {
	case domain.KindProduct:
		_, err = s.repo.GetProduct(ctx, item.ID)
	case domain.KindInventory:
		_, err = s.repo.GetMaterial(ctx, item.ID)
	}
	return translate(err, string(item.Kind), item.ID)
}
