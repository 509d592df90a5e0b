// Package builtin implements the a-base module every process hosts: a
// module-scoped key/value store and queue endpoints.
//
// Routes, under /api/a/base:
//
//	POST kv/set      {key, value}         transactional
//	POST kv/get      {key}
//	POST kv/setMany  {items: [{key, value}]}  transactional, one nested kv/set per item
//	POST kv/delete   {key}                transactional
//	POST queue/echo  any                  inner only; answers its body
//	POST queue/publish {queueName, key, data}  publishes on the caller's subdomain
package builtin
