package db

import (
	"errors"
	"strings"

	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"gorm.io/gorm"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a uniqueness constraint violation.
// When constraintName is provided, the constraint must also match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint := pkgerrors.SQLState(err); code != "" {
		return code == sqlStateUniqueViolation && matchesConstraint(constraint, constraintName)
	}
	msg := err.Error()
	if constraintName != "" && !strings.Contains(msg, constraintName) {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a foreign key violation, either a
// dangling reference on insert/update or a delete of a still-referenced row.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, _ := pkgerrors.SQLState(err); code != "" {
		return code == sqlStateForeignKeyViolation
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated) ||
		strings.Contains(err.Error(), "violates foreign key constraint") ||
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsNotFound reports whether err is GORM's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func matchesConstraint(actual, want string) bool {
	return want == "" || actual == want
}
