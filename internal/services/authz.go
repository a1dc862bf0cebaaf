package services

import "cat-map-backend/internal/models"

// Authorizer decides who may change a record
type Authorizer interface {
	CanModify(actor *models.UserProfile, ownerID string) bool
}

// RoleAuthorizer lets owners change their own records and admins change anything
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanModify(actor *models.UserProfile, ownerID string) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || (ownerID != "" && actor.ID == ownerID)
}
