// Package ginx provides gin handler adapters with automatic request
// binding and response rendering. All payloads are JSON.
//
// Supported handler signatures:
//
//	// 1. args, response and error
//	func(c *gin.Context, args *Args) (resp, error)
//
//	// 2. args and error only
//	func(c *gin.Context, args *Args) error
//
//	// 3. response and error, no args
//	func(c *gin.Context) (resp, error)
//
//	// 4. response only, no args
//	func(c *gin.Context) resp
//
// Example:
//
//	router := gin.Default()
//
//	router.POST("/vms", ginx.Adapt5(func(c *gin.Context, args *CreateVMRequest) (*CreateVMResponse, error) {
//	    return &CreateVMResponse{...}, nil
//	}))
//
//	router.GET("/health", ginx.Adapt2(func(c *gin.Context) string {
//	    return "ok"
//	}))
package ginx
