package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyDBError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyDBError(nil))
}

func TestClassifyDBError_RecordNotFound(t *testing.T) {
	dbErr := ClassifyDBError(gorm.ErrRecordNotFound)
	assert.Equal(t, ErrorTypeNotFound, dbErr.Type)
	assert.False(t, dbErr.Transient())
}

func TestClassifyDBError_MySQLErrors(t *testing.T) {
	cases := []struct {
		number    uint16
		wantType  DatabaseErrorType
		transient bool
	}{
		{1062, ErrorTypeDuplicateKey, false},
		{3140, ErrorTypeInvalidJSON, false},
		{1406, ErrorTypeDataTooLong, false},
		{1213, ErrorTypeDeadlock, true},
		{9999, ErrorTypeUnknown, false},
	}

	for _, c := range cases {
		err := &mysql.MySQLError{Number: c.number, Message: "boom"}
		dbErr := ClassifyDBError(fmt.Errorf("create failed: %w", err))
		assert.Equal(t, c.wantType, dbErr.Type, "mysql error %d", c.number)
		assert.Equal(t, c.number, dbErr.MySQLErrCode)
		assert.Equal(t, c.transient, dbErr.Transient(), "mysql error %d", c.number)
	}
}

func TestClassifyDBError_ConnectionError(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("dial tcp 10.0.0.5:3306: connection refused"))
	assert.Equal(t, ErrorTypeConnectionError, dbErr.Type)
	assert.True(t, dbErr.Transient())
}

func TestClassifyDBError_Unknown(t *testing.T) {
	dbErr := ClassifyDBError(errors.New("something odd"))
	assert.Equal(t, ErrorTypeUnknown, dbErr.Type)
	assert.False(t, dbErr.Transient())
}

func TestDatabaseErrorUnwrap(t *testing.T) {
	inner := &mysql.MySQLError{Number: 1213, Message: "deadlock"}
	dbErr := ClassifyDBError(inner)

	var target *mysql.MySQLError
	assert.True(t, errors.As(dbErr, &target))
	assert.Equal(t, uint16(1213), target.Number)
}
