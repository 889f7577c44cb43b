/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes binds every API family onto the router.  Object routes use a
// wildcard tail as object names may contain slashes.
func (h *Handler) Routes(router chi.Router) {
	router.Get("/healthz", Healthz)

	// OAuth2 token plumbing.
	router.Post("/token", h.issueToken)
	router.Post("/token/revoke", h.revokeToken)
	router.Get("/oauth2/v1/userinfo", h.userinfo)
	router.Get("/oauth2/v1/whoami", h.whoami)

	// Projects.
	router.Route("/v1/projects", func(router chi.Router) {
		router.Post("/", h.createProject)
		router.Get("/", h.listProjects)

		router.Route("/{project}", func(router chi.Router) {
			router.Get("/", h.getProject)
			router.Delete("/", h.deleteProject)
			router.Get("/iam", h.getProjectPolicy)
			router.Put("/iam", h.setProjectPolicy)
			router.Post("/iam/testPermissions", h.testPermissions)

			router.Route("/serviceAccounts", func(router chi.Router) {
				router.Post("/", h.createServiceAccount)
				router.Get("/", h.listServiceAccounts)

				router.Route("/{email}", func(router chi.Router) {
					router.Get("/", h.getServiceAccount)
					router.Delete("/", h.deleteServiceAccount)
					router.Post("/keys", h.createServiceAccountKey)
					router.Get("/keys", h.listServiceAccountKeys)
					router.Delete("/keys/{key}", h.deleteServiceAccountKey)
				})
			})
		})
	})

	// Object storage.
	router.Route("/storage/v1/b", func(router chi.Router) {
		router.Post("/", h.createBucket)
		router.Get("/", h.listBuckets)

		router.Route("/{bucket}", func(router chi.Router) {
			router.Get("/", h.getBucket)
			router.Patch("/", h.patchBucket)
			router.Put("/", h.patchBucket)
			router.Delete("/", h.deleteBucket)
			router.Get("/events", h.listBucketEvents)
			router.Get("/iam", h.getBucketPolicy)
			router.Put("/iam", h.setBucketPolicy)
			router.Post("/signedUrls", h.signURL)

			router.Get("/o", h.listObjects)
			router.Get("/o/*", h.getObject)
			router.Patch("/o/*", h.patchObject)
			router.Delete("/o/*", h.deleteObject)
		})
	})

	router.Post("/storage/v1/copy", h.copyObject)

	// Uploads.
	router.Post("/upload/storage/v1/b/{bucket}/o", h.upload)
	router.Put("/upload/resumable/{sessionId}", h.uploadChunk)

	// Signed URL access, HMAC is the only credential consulted.
	router.Get("/signed/{bucket}/*", h.signedDownload)
	router.Put("/signed/{bucket}/*", h.signedUpload)

	// Compute and VPC, project scoped.
	router.Route("/compute/v1/projects/{project}", func(router chi.Router) {
		router.Get("/zones", h.listZones)
		router.Get("/machineTypes", h.listMachineTypes)
		router.Get("/instances", h.listAllInstances)

		router.Route("/zones/{zone}/instances", func(router chi.Router) {
			router.Post("/", h.createInstance)
			router.Get("/", h.listInstances)

			router.Route("/{instance}", func(router chi.Router) {
				router.Get("/", h.getInstance)
				router.Delete("/", h.deleteInstance)
				router.Post("/start", h.startInstance)
				router.Post("/stop", h.stopInstance)
				router.Post("/addAccessConfig", h.addAccessConfig)
				router.Post("/deleteAccessConfig", h.deleteAccessConfig)
			})
		})

		router.Route("/global/networks", func(router chi.Router) {
			router.Post("/", h.createNetwork)
			router.Get("/", h.listNetworks)

			router.Route("/{network}", func(router chi.Router) {
				router.Get("/", h.getNetwork)
				router.Delete("/", h.deleteNetwork)
				router.Post("/addPeering", h.addPeering)
				router.Post("/removePeering", h.removePeering)
			})
		})

		router.Route("/global/firewalls", func(router chi.Router) {
			router.Post("/", h.createFirewall)
			router.Get("/", h.listFirewalls)
			router.Get("/{firewall}", h.getFirewall)
			router.Delete("/{firewall}", h.deleteFirewall)
		})

		router.Route("/global/routes", func(router chi.Router) {
			router.Post("/", h.createRoute)
			router.Get("/", h.listRoutes)
			router.Delete("/{route}", h.deleteRoute)
		})

		router.Route("/regions/{region}", func(router chi.Router) {
			router.Route("/subnetworks", func(router chi.Router) {
				router.Post("/", h.createSubnetwork)
				router.Get("/", h.listSubnetworks)
				router.Get("/{subnetwork}", h.getSubnetwork)
				router.Delete("/{subnetwork}", h.deleteSubnetwork)
			})

			router.Route("/addresses", func(router chi.Router) {
				router.Post("/", h.createAddress)
				router.Get("/", h.listAddresses)
				router.Get("/{address}", h.getAddress)
				router.Delete("/{address}", h.deleteAddress)
			})

			router.Route("/routers", func(router chi.Router) {
				router.Post("/", h.createRouter)
				router.Get("/", h.listRouters)
				router.Delete("/{router}", h.deleteRouter)
			})

			router.Route("/vpnTunnels", func(router chi.Router) {
				router.Post("/", h.createVPNTunnel)
				router.Get("/", h.listVPNTunnels)
			})
		})
	})

	router.NotFound(http.HandlerFunc(NotFound))
	router.MethodNotAllowed(http.HandlerFunc(MethodNotAllowed))
}
