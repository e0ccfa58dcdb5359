package handler

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var errEmptyBody = errors.New("request body is required")

// bindStrictJSON is ShouldBindJSON with unknown keys rejected. A misspelled
// record field would otherwise decode as all-zero bytes and be committed.
func bindStrictJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil {
		return errEmptyBody
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON value")
	}
	return binding.Validator.ValidateStruct(obj)
}
