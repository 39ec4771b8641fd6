/*
Copyright 2024 Earnly Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/earnly-app/earnly"
	"github.com/earnly-app/earnly/provider"
)

// HandlePostback is the single entry point for all provider notifications.
// It flattens the request into one field map, runs the reconciliation
// pipeline, and answers in whatever shape the detected provider expects.
func (a Api) HandlePostback(c *gin.Context) {
	raw := collectPostbackFields(c)

	result, err := a.earnly.ProcessPostback(c.Request.Context(), c.Param("provider"), raw)
	if result == nil {
		if err == nil {
			err = fmt.Errorf("postback processing returned no result")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}

	renderPostbackResult(c, result)
}

// collectPostbackFields merges query parameters with the request body into a
// single flat map. Body values win over query values. An unparsable body is
// tolerated silently; several networks send junk bodies alongside perfectly
// good query strings.
func collectPostbackFields(c *gin.Context) map[string]string {
	raw := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}

	if c.Request.Method != http.MethodPost || c.Request.Body == nil {
		return raw
	}

	contentType := c.ContentType()
	if strings.Contains(contentType, "application/json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(body) == 0 {
			return raw
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return raw
		}
		for key, value := range payload {
			raw[key] = stringifyField(value)
		}
		return raw
	}

	if err := c.Request.ParseForm(); err != nil {
		return raw
	}
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}
	return raw
}

func stringifyField(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// renderPostbackResult shapes the HTTP response per provider. Plain-response
// networks cannot inspect non-2xx answers, so they always get HTTP 200 with a
// bare "1" or "0" body; everyone else gets JSON with a meaningful status
// code. An accepted result is success even when the user was unknown; the
// miss is recorded server side and the network must not retry.
func renderPostbackResult(c *gin.Context, result *earnly.PostbackResult) {
	if provider.PlainResponse(result.Provider) {
		if result.Status == earnly.PostbackAccepted {
			c.String(http.StatusOK, "1")
		} else {
			c.String(http.StatusOK, "0")
		}
		return
	}

	message := result.Message
	if message == "" {
		message = string(result.Status)
	}

	switch result.Status {
	case earnly.PostbackAccepted:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ok"})
	case earnly.PostbackNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": message})
	case earnly.PostbackInvalidSignature:
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": message})
	case earnly.PostbackMalformed:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": message})
	}
}
