package main

// General API documentation for swaggo. Run `swag init` to generate docs.
//
// @title           chatd API
// @version         1.0
// @description     HTTP API for chat sessions backed by a single local LLM engine.
//
// @contact.name   chatd maintainers
// @contact.url    https://github.com/your-org/chatd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
