package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// ShareLinkPath is the public URL path prefix under which one-time links
// are served. The link id is the final path segment.
const ShareLinkPath = "/share/"
