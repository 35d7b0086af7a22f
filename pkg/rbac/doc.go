// Package rbac evaluates document-level permissions for the gateway.
//
// # Overview
//
// Access is decided per (role, store, document, operation). The policy is
// external data, loadable from a YAML or JSON file:
//
//	allowed_operations: [get, set, del]
//	default_role: student
//	roles:
//	  admin: {}
//	  student: {}
//	permissions:
//	  collection_default:
//	    document_default:
//	      role: [get]
//	    admin:
//	      "%all%": [get, set, del]
//	    student:
//	      "%user%": [get, set]
//
// Each permission table maps a document name - or one of the wildcards -
// to the operations it permits:
//
//	%all%   applies to every document
//	%user%  applies only when the document name equals the requester
//	<name>  applies to exactly that document
//
// The document_default table is the base for every role in the collection;
// role tables override it key by key, never wholesale. The three rule
// kinds are independent sufficient conditions: a request is allowed if any
// of them permits the operation.
//
// Policies compile into an immutable rule set swapped atomically, so the
// file watcher can hot-reload edits without locking the request path.
package rbac
