// Package api provides the REST API of CallIndexor
// @title CallIndexor API
// @version 1.0
// @description Lifecycle control and read access for the prediction-market call indexer
// @contact.name API Support
// @contact.url https://github.com/prediction-market/callindexor
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /
// @schemes http https
package api
