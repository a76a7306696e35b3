package middleware

import "github.com/labstack/echo/v4"

// SuccessResponse is the body of every successful JSON response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes {"success":true,...} with the given status.
func Respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}
