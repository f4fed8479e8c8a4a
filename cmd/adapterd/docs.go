package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           adapterd API
// @version         1.0
// @description     HTTP API for LoRA adapter federation, cached composition and experiments.
//
// @contact.name   adapterd maintainers
// @contact.url    https://github.com/your-org/adapterd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
