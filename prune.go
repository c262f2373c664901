package main

import (
	"context"
	"errors"

	"sosmed/models"
	"sosmed/pkg/imagehost"
	"sosmed/process"
)

// referencedImages lists every image URL a user or post row points at.
func (a *App) referencedImages(ctx context.Context) ([]string, error) {
	db := a.db.WithContext(ctx)
	var urls []string
	for _, src := range []struct {
		model  any
		column string
	}{
		{&models.User{}, "profile_img"},
		{&models.User{}, "cover_img"},
		{&models.Post{}, "img"},
	} {
		var found []string
		if err := db.Model(src.model).Where(src.column+" <> ?", "").Pluck(src.column, &found).Error; err != nil {
			return nil, err
		}
		urls = append(urls, found...)
	}
	return urls, nil
}

// pruneImages destroys uploaded images that no row refers to and returns
// them. With dryRun set nothing is removed.
func (a *App) pruneImages(ctx context.Context, dryRun bool) ([]string, error) {
	local, ok := a.images.(*imagehost.LocalHost)
	if !ok {
		return nil, errors.New("prune-images needs IMAGE_HOST=local")
	}
	stored, err := local.List()
	if err != nil {
		return nil, err
	}
	referenced, err := a.referencedImages(ctx)
	if err != nil {
		return nil, err
	}
	orphans := process.Orphans(stored, referenced)
	if dryRun {
		return orphans, nil
	}
	for _, url := range orphans {
		if err := a.images.Destroy(ctx, url); err != nil {
			return nil, err
		}
	}
	return orphans, nil
}
