package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Mobile   string `json:"mobile" validate:"required,etmobile"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := sampleRequest{Username: "abebe", Mobile: "0912345678", Amount: 30}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid struct - every field fails", func(t *testing.T) {
		invalid := sampleRequest{Username: "ab", Mobile: "0812345678"}

		err := vh.ValidateStruct(&invalid)
		require.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("mobile pattern", func(t *testing.T) {
		cases := map[string]bool{
			"0912345678":  true,
			"0900000000":  true,
			"091234567":   false,
			"09123456789": false,
			"0712345678":  false,
			"+251912345":  false,
			"09abcdefgh":  false,
		}
		for mobile, ok := range cases {
			err := vh.ValidateStruct(&sampleRequest{Username: "abebe", Mobile: mobile, Amount: 1})
			assert.Equal(t, ok, err == nil, mobile)
			if !ok {
				assert.True(t, FieldFailed(err, "Mobile"), mobile)
			}
		}
	})
}

func TestFieldFailed(t *testing.T) {
	vh := NewValidationHelper()
	err := vh.ValidateStruct(&sampleRequest{Username: "abebe", Mobile: "0912345678"})

	assert.True(t, FieldFailed(err, "Amount"))
	assert.False(t, FieldFailed(err, "Mobile"))
	assert.False(t, FieldFailed(errors.New("plain"), "Amount"))
	assert.False(t, FieldFailed(nil, "Amount"))
}

func TestDecodeJSON(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"abebe","mobile":"0912345678","amount":5}`))
		var req sampleRequest
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &req))
		assert.Equal(t, int64(5), req.Amount)
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"abebe","extra":1}`))
		var req sampleRequest
		err := DecodeJSON(httptest.NewRecorder(), r, &req)

		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, KindValidation, appErr.Kind)
		assert.Equal(t, "Invalid request body", appErr.Message)
	})

	t.Run("trailing object", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"abebe"}{"username":"kebede"}`))
		var req sampleRequest
		err := DecodeJSON(httptest.NewRecorder(), r, &req)

		var appErr *AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "Request body must only contain a single JSON object", appErr.Message)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Message)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&sampleRequest{Username: "ab", Mobile: "123"})
		require.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Validation failed", response.Message)
		assert.Contains(t, response.Details, "Username")
		assert.Contains(t, response.Details, "Mobile")
		assert.Contains(t, response.Details, "Amount")
		assert.Equal(t, "Field Validation Failed on 'etmobile' tag", response.Details["Mobile"])
	})

	t.Run("non-validator error is ignored", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, errors.New("boom"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Invalid request", response.Message)
		assert.Nil(t, response.Details)
	})
}
