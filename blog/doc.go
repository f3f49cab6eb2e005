// Package blog is the posts client: the Post model, a Service whose reads go
// through the query cache and whose writes invalidate it, and the EditSession
// that drives the create/edit form.
//
// Tag rules:
//
//	getPosts        provides (Posts, id) for every post, and (Posts, LIST)
//	getPost(id)     provides (Posts, id)
//	addPost         invalidates (Posts, LIST) on success
//	updatePost(p)   invalidates (Posts, p.ID) on success
//	deletePost(id)  invalidates (Posts, id) whether or not the request succeeds
package blog
