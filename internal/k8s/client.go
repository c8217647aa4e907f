package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const (
	defaultNamespace = "mailpipe"
	secretName       = "mailpipe-secrets"
	accountsSecret   = "mailpipe-accounts"
	accountsPath     = "/etc/mailpipe"
	backfillBinary   = "/app/bin/backfill"
)

// secret-backed environment of the backfill container, env name to secret key
var secretEnv = []struct {
	name string
	key  string
}{
	{"DATABASE_URL", "database-url"},
	{"OPENAI_API_KEY", "openai-api-key"},
	{"AZURE_OPENAI_ENDPOINT", "azure-openai-endpoint"},
	{"AZURE_OPENAI_KEY", "azure-openai-key"},
	{"SLACK_WEBHOOK_URL", "slack-webhook-url"},
	{"EXTERNAL_WEBHOOK_URL", "external-webhook-url"},
	{"SENDGRID_API_KEY", "sendgrid-api-key"},
}

// JobStatus summarizes a backfill Job
type JobStatus struct {
	JobName        string  `json:"job_name"`
	Status         string  `json:"status"`
	Active         int32   `json:"active"`
	Succeeded      int32   `json:"succeeded"`
	Failed         int32   `json:"failed"`
	StartTime      *string `json:"start_time,omitempty"`
	CompletionTime *string `json:"completion_time,omitempty"`
}

// Client wraps the Kubernetes client
type Client struct {
	clientset kubernetes.Interface
	namespace string
}

// NewClient creates a new Kubernetes client
// If namespace is empty, defaults to "mailpipe"
func NewClient(namespace string) (*Client, error) {
	config, err := getKubeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return NewClientWithClientset(clientset, namespace), nil
}

// NewClientWithClientset wraps an existing clientset
func NewClientWithClientset(clientset kubernetes.Interface, namespace string) *Client {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Client{clientset: clientset, namespace: namespace}
}

// getKubeConfig gets the Kubernetes configuration
func getKubeConfig() (*rest.Config, error) {
	// Try in-cluster config first (when running inside Kubernetes)
	config, err := rest.InClusterConfig()
	if err == nil {
		return config, nil
	}

	// Fall back to kubeconfig file
	var kubeconfig string
	if home := homedir.HomeDir(); home != "" {
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	// Check if KUBECONFIG env var is set
	if envKubeconfig := os.Getenv("KUBECONFIG"); envKubeconfig != "" {
		kubeconfig = envKubeconfig
	}

	config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	return config, nil
}

// BackfillJobName returns a unique, DNS-safe job name
func BackfillJobName(now time.Time) string {
	return fmt.Sprintf("mail-backfill-%d", now.Unix())
}

// CreateBackfillJob creates a Job running cmd/backfill. An empty accounts list
// backfills every configured account.
func (c *Client) CreateBackfillJob(ctx context.Context, jobName, containerImage string, accounts []string) error {
	labels := map[string]string{
		"app":      "mail-backfill",
		"job-type": "backfill",
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: c.namespace,
			Labels: map[string]string{
				"app":          "mail-backfill",
				"job-type":     "backfill",
				"triggered-by": "api",
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(2),
			TTLSecondsAfterFinished: int32Ptr(86400),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       c.buildPodSpec(containerImage, accounts),
			},
		},
	}

	_, err := c.clientset.BatchV1().Jobs(c.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (c *Client) buildPodSpec(containerImage string, accounts []string) corev1.PodSpec {
	args := []string{}
	if len(accounts) > 0 {
		args = append(args, "-accounts", strings.Join(accounts, ","))
	}

	env := []corev1.EnvVar{
		{Name: "ACCOUNTS_FILE", Value: accountsPath + "/accounts.toml"},
		{Name: "LOG_LEVEL", Value: "info"},
	}
	for _, e := range secretEnv {
		env = append(env, corev1.EnvVar{
			Name: e.name,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
					Key:                  e.key,
					Optional:             boolPtr(true),
				},
			},
		})
	}

	return corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers: []corev1.Container{
			{
				Name:    "backfill",
				Image:   containerImage,
				Command: []string{backfillBinary},
				Args:    args,
				Env:     env,
				VolumeMounts: []corev1.VolumeMount{
					{
						Name:      "accounts",
						MountPath: accountsPath,
						ReadOnly:  true,
					},
				},
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("256Mi"),
						corev1.ResourceCPU:    resourceQuantity("250m"),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceMemory: resourceQuantity("1Gi"),
						corev1.ResourceCPU:    resourceQuantity("1000m"),
					},
				},
			},
		},
		Volumes: []corev1.Volume{
			{
				Name: "accounts",
				VolumeSource: corev1.VolumeSource{
					Secret: &corev1.SecretVolumeSource{SecretName: accountsSecret},
				},
			},
		},
	}
}

// GetJobStatus gets the status of a job
func (c *Client) GetJobStatus(ctx context.Context, jobName string) (*JobStatus, error) {
	job, err := c.clientset.BatchV1().Jobs(c.namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return statusOf(job), nil
}

func statusOf(job *batchv1.Job) *JobStatus {
	status := "pending"
	if job.Status.Active > 0 {
		status = "running"
	} else if job.Status.Succeeded > 0 {
		status = "completed"
	} else if job.Status.Failed > 0 {
		status = "failed"
	}

	result := &JobStatus{
		JobName:   job.Name,
		Status:    status,
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
	if job.Status.StartTime != nil {
		s := job.Status.StartTime.Format(time.RFC3339)
		result.StartTime = &s
	}
	if job.Status.CompletionTime != nil {
		s := job.Status.CompletionTime.Format(time.RFC3339)
		result.CompletionTime = &s
	}
	return result
}

// DeleteJob deletes a job
func (c *Client) DeleteJob(ctx context.Context, jobName string) error {
	deletePolicy := metav1.DeletePropagationForeground
	err := c.clientset.BatchV1().Jobs(c.namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &deletePolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Helper functions

func int32Ptr(i int32) *int32 {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}

func resourceQuantity(value string) resource.Quantity {
	qty, err := resource.ParseQuantity(value)
	if err != nil {
		// Return zero quantity on error
		return resource.Quantity{}
	}
	return qty
}
