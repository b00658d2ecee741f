/*
Package client is the typed HTTP client for the roost control API.

It mirrors pkg/api's routes one method per endpoint, decodes JSON
responses into pkg/types values, and turns HTTP error payloads back into
Go errors (404 becomes errdefs.ErrNotFound, so CLI code can errors.Is
its way to a friendly message). The CLI is the main consumer; anything
that can reach the API address can use it.

Events streams the controller's NDJSON event feed until the context is
cancelled or the server goes away.
*/
package client
